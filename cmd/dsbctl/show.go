package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
)

func newPlansCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plans",
		Short: "List the dates with a stored plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dates, err := c.app.Session.PlanDates(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), dates)
			}
			for _, d := range dates {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), d); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func newShowCmd(c *cli) *cobra.Command {
	var (
		date   string
		class  string
		asJSON bool
		asICS  bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored lessons for a day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON && asICS {
				return errors.New("--json and --ics are mutually exclusive")
			}
			if date == "" || strings.EqualFold(date, "today") {
				date = c.app.Session.Today()
			}
			class = strings.TrimSpace(class)

			if asICS {
				timetable, err := c.app.Session.Timetable(cmd.Context(), date)
				if err != nil {
					return err
				}
				body, err := c.app.Exporter.Export(timetable, class)
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), body)
				return err
			}

			lessons, err := c.app.Session.ScheduleForClass(cmd.Context(), date, class)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), lessons)
			}
			return writeLessons(cmd.OutOrStdout(), date, lessons)
		},
	}

	cmd.Flags().StringVar(&date, "date", "today", "Plan date (YYYY-MM-DD or today)")
	cmd.Flags().StringVar(&class, "class", "", "Only lessons of this class")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().BoolVar(&asICS, "ics", false, "Print an iCalendar document")

	return cmd
}

func writeLessons(w io.Writer, date string, lessons []model.Lesson) error {
	if len(lessons) == 0 {
		_, err := fmt.Fprintf(w, "no entries for %s\n", date)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CLASS\tPERIOD\tSUBJECT\tTEACHER\tROOM\tNOTE")
	for _, l := range lessons {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			dash(l.Class), l.PeriodLabel(), dash(l.Subject), dash(l.Teacher), dash(l.Room), l.Message)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
