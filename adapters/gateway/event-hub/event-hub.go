package event_hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azeventhubs"
	"github.com/rs/zerolog"

	"github.com/Go-routine-4595/sensorhub/model"
)

// connection string can carry the event hub name like this
// Endpoint=sb://<namespace>.servicebus.windows.net/;SharedAccessKeyName=<KeyName>;SharedAccessKey=<KeyValue>;EntityPath=sensor-events
// in which case EventHubName stays empty.

type EventHubConfig struct {
	Connection   string        `yaml:"Connection"`
	EventHubName string        `yaml:"EventHubName"`
	SendTimeout  time.Duration `yaml:"SendTimeout"`
}

// EventHub relays live events to Azure Event Hubs, partitioned by sensor type
// so each series stays ordered.
type EventHub struct {
	producerClient *azeventhubs.ProducerClient
	timeout        time.Duration
	logger         zerolog.Logger
}

func NewEventHub(ctx context.Context, wg *sync.WaitGroup, conf EventHubConfig, logger zerolog.Logger) (*EventHub, error) {
	var (
		err            error
		producerClient *azeventhubs.ProducerClient
	)
	producerClient, err = azeventhubs.NewProducerClientFromConnectionString(conf.Connection, conf.EventHubName, nil)
	if err != nil {
		return nil, errors.Join(err, errors.New("failed to create producer client"))
	}
	if conf.SendTimeout <= 0 {
		conf.SendTimeout = 10 * time.Second
	}

	e := &EventHub{
		producerClient: producerClient,
		timeout:        conf.SendTimeout,
		logger:         logger.With().Str("component", "event-hub").Logger(),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := producerClient.Close(closeCtx); err != nil {
			e.logger.Error().Err(err).Msg("failed to close producer client")
		}
	}()

	return e, nil
}

func (e *EventHub) Broadcast(ev model.LiveEvent) error {
	var (
		buf   []byte
		err   error
		batch *azeventhubs.EventDataBatch
	)

	buf, err = json.Marshal(ev)
	if err != nil {
		return errors.Join(err, errors.New("failed to marshal event event-hub.Broadcast"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	key := string(ev.Type)
	batch, err = e.producerClient.NewEventDataBatch(ctx, &azeventhubs.EventDataBatchOptions{
		PartitionKey: &key,
	})
	if err != nil {
		return errors.Join(err, errors.New("failed to create event data batch"))
	}

	err = batch.AddEventData(createEventForReading(ev, buf), nil)
	if errors.Is(err, azeventhubs.ErrEventDataTooLarge) {
		return errors.Join(err, errors.New("failed to send event, event is too large"))
	} else if err != nil {
		return errors.Join(err, errors.New("failed to add event to batch"))
	}

	if err = e.producerClient.SendEventDataBatch(ctx, batch, nil); err != nil {
		return errors.Join(err, errors.New("failed to send event batch"))
	}
	return nil
}

func createEventForReading(ev model.LiveEvent, buf []byte) *azeventhubs.EventData {
	contentType := "application/json"
	id := ev.ID
	return &azeventhubs.EventData{
		Body:        buf,
		ContentType: &contentType,
		MessageID:   &id,
		Properties: map[string]any{
			"sensorType": string(ev.Type),
		},
	}
}

var _ model.Broadcaster = (*EventHub)(nil)
