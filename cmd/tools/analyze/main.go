// analyze prints the stored analysis for one opportunity as tables.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/marcus/bid-analyzer/internal/db"
)

func main() {
	idFlag := flag.String("id", "", "opportunity UUID")
	flag.Parse()

	id, err := uuid.Parse(*idFlag)
	if err != nil {
		log.Fatalf("invalid -id: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()
	store := db.NewStore(pool)

	opp, err := store.GetOpportunity(ctx, id)
	if err != nil {
		log.Fatalf("Lookup failed: %v", err)
	}

	fmt.Printf("%s\n", opp.Title)
	fmt.Printf("Status: %s  Stage: %s\n", opp.Status, opp.AnalysisStage)
	if opp.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", opp.ErrorMessage)
	}
	fmt.Println()

	clins, err := store.GetCLINs(ctx, id)
	if err != nil {
		log.Fatalf("CLIN query failed: %v", err)
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"CLIN", "Product", "Qty", "Unit", "Delivery", "Timeline"})
	for _, c := range clins {
		qty := ""
		if c.Quantity != nil {
			qty = fmt.Sprintf("%g", *c.Quantity)
		}
		place := c.Delivery.City
		if c.Delivery.State != "" {
			place += ", " + c.Delivery.State
		}
		t.AppendRow(table.Row{c.CLINNumber, c.ProductName, qty, c.Unit, place, c.Delivery.Timeline})
	}
	t.Render()

	deadlines, err := store.GetDeadlines(ctx, id)
	if err != nil {
		log.Fatalf("Deadline query failed: %v", err)
	}
	t = table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Type", "Date", "Time", "TZ", "Primary"})
	for _, d := range deadlines {
		date := ""
		if d.DueDate != nil {
			date = d.DueDate.Format("2006-01-02")
		}
		primary := ""
		if d.IsPrimary {
			primary = "yes"
		}
		t.AppendRow(table.Row{d.Type, date, d.DueTime, d.Timezone, primary})
	}
	t.Render()
}
