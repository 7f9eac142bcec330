package thought

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectActive(t *testing.T) {
	keys := []string{"news_agent", "sentiment_agent", "agent"}

	tests := []struct {
		name string
		raw  string
		keys []string
		want []string
	}{
		{"none", "checking prices", keys, nil},
		{"single", "calling news_agent now", keys, []string{"news_agent"}},
		{"case insensitive", "NEWS_AGENT and Sentiment_Agent", keys, []string{"news_agent", "sentiment_agent"}},
		{"duplicates in order", "news_agent sentiment_agent news_agent", keys, []string{"news_agent", "sentiment_agent", "news_agent"}},
		{"cursor skips past match", "news_agent", keys, []string{"news_agent"}},
		{"shorter key on its own", "an agent here", keys, []string{"agent"}},
		{"not token aware", "xnews_agentx", keys, []string{"news_agent"}},
		{"first key wins at a position", "abc", []string{"ab", "abc"}, []string{"ab"}},
		{"overlap not matched twice", "aaa", []string{"aa"}, []string{"aa"}},
		{"empty key ignored", "abc", []string{""}, nil},
		{"no keys", "news_agent", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectActive(tt.raw, tt.keys))
		})
	}
}

func TestActiveLabel(t *testing.T) {
	names := map[string]string{"news_agent": "News", "sentiment_agent": "Sentiment"}

	assert.Equal(t, "", ActiveLabel(nil, names))
	assert.Equal(t, "Running the News agent", ActiveLabel([]string{"news_agent", "news_agent"}, names))
	assert.Equal(t, "Running the Sentiment, News agents",
		ActiveLabel([]string{"sentiment_agent", "news_agent", "sentiment_agent"}, names))
	assert.Equal(t, "Running the risk_agent agent", ActiveLabel([]string{"risk_agent"}, names))
}
