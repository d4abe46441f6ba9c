package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"eventtimers/internal/config"
	"eventtimers/internal/ics"
	appLog "eventtimers/internal/log"
	"eventtimers/internal/model"
	"eventtimers/internal/notify"
)

var (
	upcomingFlags = []cli.Flag{
		cli.IntFlag{
			Name:  "max, m",
			Usage: "number of rows to print (default: configured max upcoming events)",
		},
	}

	exportFlags = []cli.Flag{
		cli.StringFlag{
			Name:  "out, o",
			Usage: "output file, - for stdout",
			Value: "-",
		},
		cli.IntFlag{
			Name:  "hours",
			Usage: "how far ahead to export (default: configured horizon)",
		},
		cli.BoolFlag{
			Name:  "all, a",
			Usage: "include events without a subscription",
		},
		cli.StringFlag{
			Name:  "name",
			Usage: "calendar name",
			Value: "Event Timers",
		},
	}

	subscribeFlags = []cli.Flag{
		cli.BoolFlag{
			Name:  "one-shot, 1",
			Usage: "drop the subscription once the next occurrence starts",
		},
	}
)

var errNoEventIDs = errors.New("at least one Track/Event argument is required")

func upcomingCmd(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	now := time.Now()
	tracks, err := e.tracks(now)
	if err != nil {
		return err
	}
	st, err := e.newStore(tracks)
	if err != nil {
		return err
	}

	settings := st.Settings()
	settings.ToastsEnabled = false
	if m := c.Int("max"); m > 0 {
		settings.MaxUpcoming = m
	}
	st.SetNotifications(st.Reminders(), settings)

	sched := notify.New(st)
	sched.Tick(now)

	entries := sched.Upcoming()
	if len(entries) == 0 {
		fmt.Fprintln(c.App.Writer, "no upcoming subscribed events")
		return nil
	}

	loc := e.cfg.Location()
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tSTARTS\tIN\tCOPY")
	for _, u := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			u.EventID,
			time.Unix(u.Start, 0).In(loc).Format("15:04:05"),
			u.Countdown(),
			model.ClipboardText(u.EventID.Event, u.CopyText, e.cfg.CopyWithEventName),
		)
	}
	return w.Flush()
}

func nextCmd(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowCommandHelp(c, c.Command.Name)
	}
	id, err := model.ParseEventID(c.Args().First())
	if err != nil {
		return err
	}

	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	now := time.Now()
	tracks, err := e.tracks(now)
	if err != nil {
		return err
	}

	occ, ev, err := nextOccurrence(tracks, id, now.Unix())
	if err != nil {
		return err
	}

	loc := e.cfg.Location()
	start := time.Unix(occ.Start, 0).In(loc)
	end := time.Unix(occ.End(ev.Duration), 0).In(loc)
	state := "starts in " + model.FormatCountdown(occ.SecondsUntil, 0)
	if occ.Active() {
		state = "active, started " + model.FormatCountdown(0, occ.SecondsInto)
	}
	fmt.Fprintf(c.App.Writer, "%s: %s - %s (%s)\n",
		id, start.Format(time.DateTime), end.Format("15:04:05"), state)
	if text := model.ClipboardText(ev.Name, ev.CopyText, e.cfg.CopyWithEventName); text != "" {
		fmt.Fprintln(c.App.Writer, text)
	}
	return nil
}

func exportCmd(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	now := time.Now()
	tracks, err := e.tracks(now)
	if err != nil {
		return err
	}
	subs, err := e.cfg.Subscriptions.Set()
	if err != nil {
		return err
	}

	horizon := e.cfg.Horizon()
	if h := c.Int("hours"); h > 0 {
		horizon = time.Duration(h) * time.Hour
	}

	cal, err := ics.Export(tracks, subs, ics.Options{
		From: now,
		To:   now.Add(horizon),
		All:  c.Bool("all"),
		Name: c.String("name"),
	}, now)
	if err != nil {
		return err
	}

	out := c.String("out")
	if out == "" || out == "-" {
		return cal.SerializeTo(c.App.Writer)
	}
	if err := config.WriteFileAtomic(appFs, out, []byte(cal.Serialize())); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	appLog.Info("calendar exported", "path", out, "events", len(cal.Events()))
	return nil
}

func subscribeCmd(c *cli.Context) error {
	oneShot := c.Bool("one-shot")
	return editSubscriptions(c, func(subs model.Subscriptions, id model.EventID) {
		delete(subs.Persistent, id)
		delete(subs.OneShot, id)
		if oneShot {
			subs.OneShot[id] = struct{}{}
		} else {
			subs.Persistent[id] = struct{}{}
		}
	}, true)
}

func unsubscribeCmd(c *cli.Context) error {
	return editSubscriptions(c, func(subs model.Subscriptions, id model.EventID) {
		delete(subs.Persistent, id)
		delete(subs.OneShot, id)
	}, false)
}

// editSubscriptions applies edit to every id argument and saves the config.
// With mustExist, ids not found in the catalog are rejected.
func editSubscriptions(c *cli.Context, edit func(model.Subscriptions, model.EventID), mustExist bool) error {
	if c.NArg() == 0 {
		return errNoEventIDs
	}

	ids := make([]model.EventID, 0, c.NArg())
	var errs []error
	for _, raw := range c.Args() {
		id, err := model.ParseEventID(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, id)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	if mustExist {
		tracks, err := e.tracks(time.Now())
		if err != nil {
			return err
		}
		if err := checkKnown(tracks, ids); err != nil {
			return err
		}
	}

	subs, err := e.cfg.Subscriptions.Set()
	if err != nil {
		return err
	}
	for _, id := range ids {
		edit(subs, id)
	}
	e.cfg.Subscriptions = config.SubscriptionsFrom(model.SortedIDs(subs.Persistent), model.SortedIDs(subs.OneShot))
	if err := e.cfg.Save(appFs, e.path); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "%d persistent, %d one-shot subscriptions\n", len(subs.Persistent), len(subs.OneShot))
	return nil
}

func checkKnown(tracks []model.Track, ids []model.EventID) error {
	known := make(map[model.EventID]struct{})
	for _, t := range tracks {
		for _, ev := range t.Events {
			known[model.NewEventID(t.Name, ev.Name)] = struct{}{}
		}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("unknown events: %s", strings.Join(missing, ", "))
	}
	return nil
}
