package cobra

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"text/template"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vx-labs/chat-hub/events"
	"github.com/vx-labs/chat-hub/format"
)

func Events(ctx context.Context, config *viper.Viper, open Opener) *cobra.Command {
	c := &cobra.Command{
		Use: "events",
	}
	c.AddCommand(Tail(ctx, config, open))
	return c
}

func Tail(ctx context.Context, config *viper.Viper, open Opener) *cobra.Command {
	c := &cobra.Command{
		PreRun: func(c *cobra.Command, _ []string) {
			config.BindPFlag("output", c.Flags().Lookup("output"))
			config.BindPFlag("kind", c.Flags().Lookup("kind"))
		},
		Use:   "tail",
		Short: "print replication events published on the bus",
		Run: func(cmd *cobra.Command, _ []string) {
			b, err := open(ctx)
			if err != nil {
				logrus.Errorf("failed to connect to bus: %v", err)
				return
			}
			defer b.Close()
			p := newPrinter(cmd.OutOrStdout(), config.GetString("output"), config.GetStringSlice("kind"))
			cancel, err := b.Subscribe(p.handle)
			if err != nil {
				logrus.Errorf("failed to subscribe: %v", err)
				return
			}
			defer cancel()
			<-ctx.Done()
		},
	}
	c.Flags().StringP("output", "o", "text", "Output format (text or json)")
	c.Flags().StringSliceP("kind", "k", []string{}, "Only print events of these kinds")
	return c
}

type record struct {
	ID      string         `json:"id"`
	Origin  string         `json:"origin"`
	Kind    events.Kind    `json:"kind"`
	Time    time.Time      `json:"time"`
	Payload events.Payload `json:"payload"`
}

type printer struct {
	mtx      sync.Mutex
	out      io.Writer
	encoder  *json.Encoder
	template *template.Template
	kinds    map[events.Kind]struct{}
}

func newPrinter(out io.Writer, output string, kinds []string) *printer {
	p := &printer{
		out:   out,
		kinds: map[events.Kind]struct{}{},
	}
	if output == "json" {
		p.encoder = json.NewEncoder(out)
	} else {
		p.template = format.ParseTemplate(format.EventTemplate)
	}
	for _, kind := range kinds {
		p.kinds[events.Kind(kind)] = struct{}{}
	}
	return p
}

func (p *printer) handle(buf []byte) {
	ev, err := events.Decode(buf)
	if err != nil {
		logrus.Errorf("invalid event payload: %v", err)
		return
	}
	if len(p.kinds) > 0 {
		if _, ok := p.kinds[ev.Kind()]; !ok {
			return
		}
	}
	r := record{ID: ev.ID, Origin: ev.Origin, Kind: ev.Kind(), Time: ev.Time(), Payload: ev.Payload}
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.encoder != nil {
		p.encoder.Encode(r)
		return
	}
	if err := p.template.Execute(p.out, r); err != nil {
		logrus.Errorf("failed to render event: %v", err)
	}
}
