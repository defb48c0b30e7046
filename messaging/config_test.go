package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTopics(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"book-service-audit-logs", []string{"book-service-audit-logs"}},
		{" book-service-audit-logs , loan-service-audit-logs ", []string{"book-service-audit-logs", "loan-service-audit-logs"}},
		{"a,,b,a", []string{"a", "b"}},
		{"", nil},
		{" , ", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseTopics(tt.in), tt.in)
	}
}

func TestConsumerConfigDefaults(t *testing.T) {
	var cfg ConsumerConfig
	cfg.applyDefaults()

	assert.Equal(t, 100*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 500, cfg.MaxPollRecords)
	assert.Equal(t, 0, cfg.MaxRetries)
}
