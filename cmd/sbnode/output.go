package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/creamcroissant/sbnode/internal/document"
	"github.com/creamcroissant/sbnode/internal/service"
)

func protocolName(p document.Protocol) string {
	switch p {
	case document.ProtocolVLESS:
		return "VLESS"
	case document.ProtocolHysteria2:
		return "Hysteria2"
	}
	return string(p)
}

// printResult shows what an operation wrote, its links and any warnings.
func printResult(w io.Writer, res *service.Result) {
	if res == nil {
		return
	}
	for _, path := range res.Written {
		fmt.Fprintf(w, "Wrote %s\n", path)
	}
	if len(res.Links) > 0 {
		fmt.Fprintln(w)
	}
	for _, l := range res.Links {
		fmt.Fprintf(w, "%s: %s\n", protocolName(l.Protocol), l.URI)
		if l.Image != "" {
			fmt.Fprintf(w, "  QR image: %s\n", l.Image)
		}
	}
	printWarnings(w, res.Warnings)
}

func printWarnings(w io.Writer, warnings []service.Warning) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, warn := range warnings {
		fmt.Fprintf(w, "Warning: %s\n", warn)
	}
}

// printListing renders the user table followed by every link.
func printListing(w io.Writer, listing *service.Listing) {
	if len(listing.Users) == 0 {
		fmt.Fprintln(w, "No users configured.")
		printWarnings(w, listing.Warnings)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tLABEL\tVLESS\tHYSTERIA2\t")
	for _, u := range listing.Users {
		label := u.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", u.Username, label, yesNo(u.InVLESS), yesNo(u.InHysteria2))
	}
	tw.Flush()

	for _, u := range listing.Users {
		if len(u.Links) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n[%s]", u.Username)
		if u.Partial() {
			fmt.Fprint(w, " (partial)")
		}
		fmt.Fprintln(w)
		for _, l := range u.Links {
			fmt.Fprintf(w, "  %s: %s\n", protocolName(l.Protocol), l.URI)
		}
	}
	printWarnings(w, listing.Warnings)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func joinInts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ", ")
}
