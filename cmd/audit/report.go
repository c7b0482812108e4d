package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"personachat/services"
)

func writeReport(w io.Writer, summary map[string]services.OutcomeCounts) error {
	ids := make([]string, 0, len(summary))
	for id := range summary {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PERSONA\tCLOSED\tERRORED\tREJECTED\tFRAGMENTS")
	var total services.OutcomeCounts
	for _, id := range ids {
		c := summary[id]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", id, c.Closed, c.Errored, c.Rejected, c.Fragments)
		total.Closed += c.Closed
		total.Errored += c.Errored
		total.Rejected += c.Rejected
		total.Fragments += c.Fragments
	}
	fmt.Fprintf(tw, "total\t%d\t%d\t%d\t%d\n", total.Closed, total.Errored, total.Rejected, total.Fragments)
	return tw.Flush()
}
