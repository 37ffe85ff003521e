package landmark

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ResultMessage is the wire format for published calibration outcomes
type ResultMessage struct {
	SessionID     string   `json:"sessionId"`
	Success       bool     `json:"success"`
	RMSError      float64  `json:"rmsError"`
	StatusMessage string   `json:"statusMessage"`
	Matrix        *Matrix4 `json:"matrix,omitempty"` // linear transforms only
	Timestamp     int64    `json:"timestamp"`
}

// Publisher pushes calibration results to MQTT so downstream consumers
// (navigation displays, loggers) see each new transform and status.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	results       map[string]*ResultMessage
	mu            sync.RWMutex
}

// NewPublisher creates a result publisher.
// If client is nil, publishing is disabled (for testing).
func NewPublisher(client mqtt.Client) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = "fidcal"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true, // retain so late subscribers get the latest result
		results:       make(map[string]*ResultMessage),
	}
}

// PublishResult publishes a session's calibration result to its topic
// and refreshes the combined results topic.
func (p *Publisher) PublishResult(sessionID string, result CalibrationResult) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	msg := &ResultMessage{
		SessionID:     sessionID,
		Success:       result.Success,
		RMSError:      result.RMSError,
		StatusMessage: result.StatusMessage,
		Timestamp:     time.Now().Unix(),
	}
	if lt, ok := result.Transform.(LinearTransform); ok {
		m := lt.Matrix
		msg.Matrix = &m
	}

	p.mu.Lock()
	p.results[sessionID] = msg
	p.mu.Unlock()

	if err := p.publishIndividual(msg); err != nil {
		log.Printf("Error publishing result for %s: %v", sessionID, err)
		return err
	}

	if err := p.publishCombined(); err != nil {
		log.Printf("Error publishing combined results: %v", err)
		return err
	}

	return nil
}

// publishIndividual publishes one session's result to <prefix>/<session>/result
func (p *Publisher) publishIndividual(msg *ResultMessage) error {
	topic := fmt.Sprintf("%s/%s/result", p.publishPrefix, msg.SessionID)

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	log.Printf("Published result for %s: success=%v rms=%.4f", msg.SessionID, msg.Success, msg.RMSError)
	return nil
}

// publishCombined publishes all session results to the combined topic
func (p *Publisher) publishCombined() error {
	p.mu.RLock()
	results := make([]*ResultMessage, 0, len(p.results))
	for _, msg := range p.results {
		results = append(results, msg)
	}
	p.mu.RUnlock()

	if len(results) == 0 {
		return nil
	}

	topic := fmt.Sprintf("%s/results", p.publishPrefix)

	message := map[string]interface{}{
		"sessions":  results,
		"timestamp": time.Now().Unix(),
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling combined results: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	return nil
}

// LastResult returns the last published result for a session
func (p *Publisher) LastResult(sessionID string) (*ResultMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	msg, ok := p.results[sessionID]
	return msg, ok
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
