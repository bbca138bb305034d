package mesh

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultPublishPrefix is the topic prefix used when none is configured
const DefaultPublishPrefix = "odfpeaks"

// Publisher manages publishing peak reports to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	reports       map[string]*PeakReport
	mu            sync.RWMutex
}

// NewPublisher creates a new report publisher.
// Prefix priority: MQTT_PUBLISH_PREFIX env > prefix argument > "odfpeaks".
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // QoS 0 for report updates (fire and forget)
		retain:        true, // Retain for latest report
		reports:       make(map[string]*PeakReport),
	}
}

// Prefix returns the topic prefix in use
func (p *Publisher) Prefix() string {
	return p.publishPrefix
}

// PublishReport publishes a peak report to the source's topic and
// refreshes the combined peaks topic
func (p *Publisher) PublishReport(r *PeakReport) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	p.mu.Lock()
	p.reports[r.Source] = r
	p.mu.Unlock()

	// {prefix}/{sourceID}
	if err := p.publishIndividual(r); err != nil {
		log.Printf("[MQTT] Error publishing report for %s: %v", r.Source, err)
		return err
	}

	// {prefix}/peaks
	if err := p.publishCombined(); err != nil {
		log.Printf("[MQTT] Error publishing combined reports: %v", err)
		return err
	}

	return nil
}

func (p *Publisher) publishIndividual(r *PeakReport) error {
	topic := fmt.Sprintf("%s/%s", p.publishPrefix, r.Source)

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if err := p.publish(topic, payload); err != nil {
		return err
	}

	log.Printf("[MQTT] Published %d peaks for %s", r.Len(), r.Source)
	return nil
}

// CombinedMessage is the payload of the {prefix}/peaks topic
type CombinedMessage struct {
	Sources   []*PeakReport `json:"sources"`
	Timestamp int64         `json:"timestamp"`
}

func (p *Publisher) publishCombined() error {
	reports := p.GetAllReports()
	if len(reports) == 0 {
		return nil
	}

	payload, err := json.Marshal(CombinedMessage{
		Sources:   reports,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshaling combined reports: %w", err)
	}

	return p.publish(fmt.Sprintf("%s/peaks", p.publishPrefix), payload)
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// GetReport returns the last published report for a source
func (p *Publisher) GetReport(sourceID string) (*PeakReport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.reports[sourceID]
	return r, ok
}

// GetAllReports returns all published reports sorted by source ID
func (p *Publisher) GetAllReports() []*PeakReport {
	p.mu.RLock()
	defer p.mu.RUnlock()

	reports := make([]*PeakReport, 0, len(p.reports))
	for _, r := range p.reports {
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Source < reports[j].Source
	})
	return reports
}

// ClearReport removes a source's report (e.g., when the source goes offline)
func (p *Publisher) ClearReport(sourceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.reports, sourceID)
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
