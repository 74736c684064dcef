// Package queue is the Kafka transport for render requests and replies.
package queue

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// SecurityConfig selects the broker security protocol and, when SASL is in
// play, the mechanism and credentials.
type SecurityConfig struct {
	Protocol  string // PLAINTEXT, SSL, SASL_PLAINTEXT, SASL_SSL
	Mechanism string // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Username  string
	Password  string
}

func (c SecurityConfig) useTLS() bool {
	switch strings.ToUpper(c.Protocol) {
	case "SSL", "SASL_SSL":
		return true
	}
	return false
}

func (c SecurityConfig) useSASL() bool {
	switch strings.ToUpper(c.Protocol) {
	case "SASL_PLAINTEXT", "SASL_SSL":
		return true
	}
	return false
}

func (c SecurityConfig) saslMechanism() (sasl.Mechanism, error) {
	switch strings.ToUpper(c.Mechanism) {
	case "", "PLAIN":
		return plain.Mechanism{Username: c.Username, Password: c.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, c.Username, c.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, c.Username, c.Password)
	default:
		return nil, fmt.Errorf("unsupported sasl mechanism %q", c.Mechanism)
	}
}

// dialer builds the reader-side connection settings
func (c SecurityConfig) dialer() (*kafka.Dialer, error) {
	d := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	if c.useTLS() {
		d.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if c.useSASL() {
		m, err := c.saslMechanism()
		if err != nil {
			return nil, err
		}
		d.SASLMechanism = m
	}
	return d, nil
}

// transport builds the writer-side connection settings
func (c SecurityConfig) transport() (*kafka.Transport, error) {
	t := &kafka.Transport{
		DialTimeout: 10 * time.Second,
	}
	if c.useTLS() {
		t.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if c.useSASL() {
		m, err := c.saslMechanism()
		if err != nil {
			return nil, err
		}
		t.SASL = m
	}
	return t, nil
}
