package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/zombor/billed/internal/bills"
)

// renderBills writes the bill list as a table
func renderBills(w io.Writer, list []bills.DisplayBill) error {
	fmt.Fprintln(w, "Mes notes de frais")
	if len(list) == 0 {
		fmt.Fprintln(w, "Aucune note de frais")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Type\tNom\tDate\tMontant\tStatut\tJustificatif")
	for _, b := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d €\t%s\t%s\n", b.Type, b.Name, b.FormattedDate, b.Amount, b.StatusLabel, b.FileURL)
	}
	return tw.Flush()
}

// renderError writes the error page shown when the store fails
func renderError(w io.Writer, err error) {
	fmt.Fprintln(w, "Erreur")
	fmt.Fprintln(w, err.Error())
}
