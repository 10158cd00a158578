package display

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Go-routine-4595/sensorhub/model"
)

// Display writes every live event as one JSON line, for watching a pipeline
// from a terminal.
type Display struct {
	mu  sync.Mutex
	out io.Writer
}

func NewDisplay() *Display {
	return NewDisplayTo(os.Stdout)
}

func NewDisplayTo(w io.Writer) *Display {
	return &Display{out: w}
}

func (d *Display) Broadcast(ev model.LiveEvent) error {
	var (
		buf []byte
		err error
	)

	buf, err = json.Marshal(ev)
	if err != nil {
		return errors.Join(err, errors.New("failed to marshal event display.Broadcast"))
	}
	return d.display(string(buf))
}

// Readings prints a batch fetched over the API, oldest first.
func (d *Display) Readings(readings []model.Reading) error {
	for _, r := range readings {
		if err := d.Broadcast(model.NewLiveEvent(r)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Display) display(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := fmt.Fprintln(d.out, text)
	return err
}

var _ model.Broadcaster = (*Display)(nil)
