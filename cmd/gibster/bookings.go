package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"gibster/internal/api"
	"gibster/internal/models"

	"github.com/spf13/cobra"
)

func newBookingsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bookings",
		Short: "List synced bookings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			bookings, err := api.Result[[]models.Booking](a.client.Bookings(cmd.Context()))
			if err != nil {
				return err
			}
			printBookings(cmd.OutOrStdout(), *bookings)
			return nil
		},
	}
}

func printBookings(out io.Writer, bookings []models.Booking) {
	if len(bookings) == 0 {
		fmt.Fprintln(out, "No bookings. Run 'gibster sync' first.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "START\tEND\tNAME\tSTUDIO\tLOCATION\tSTATUS\tPRICE")
	for _, b := range bookings {
		price := "-"
		if b.Price != nil {
			price = fmt.Sprintf("%.2f", *b.Price)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			formatWhen(b.StartTime), formatWhen(b.EndTime), b.Name, b.Studio, b.Location, b.Status, price)
	}
	_ = w.Flush()
}
