// Package publish streams live meter frames to an MQTT topic so a remote
// dashboard can mirror the gauge.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mhaglund/fieldmeter/internal/meter"
)

// Options configures the publisher.
type Options struct {
	Broker   string
	ClientID string
	Topic    string
	RateHz   int
}

// Run connects to the broker and publishes one frame per tick until ctx
// is cancelled. Connection failures are returned; publish failures on a
// live connection are logged and skipped.
func Run(ctx context.Context, m *meter.Meter, opts Options) error {
	if opts.ClientID == "" {
		opts.ClientID = "fieldmeter-publisher"
	}
	if opts.RateHz <= 0 {
		opts.RateHz = 10
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID)

	client := mqtt.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	defer client.Disconnect(250)

	log.Printf("publishing frames to %s on %s", opts.Topic, opts.Broker)

	ticker := time.NewTicker(time.Second / time.Duration(opts.RateHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		payload, err := json.Marshal(m.Snapshot())
		if err != nil {
			log.Printf("frame marshal error: %v", err)
			continue
		}
		token := client.Publish(opts.Topic, 0, false, payload)
		token.Wait()
		if token.Error() != nil {
			log.Printf("mqtt publish error: %v", token.Error())
		}
	}
}
