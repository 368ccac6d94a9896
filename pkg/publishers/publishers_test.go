package publishers

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestLoadRegistryEnabledFilter(t *testing.T) {
	path := writeFile(t, "publishers.yaml", `
publishers:
  - id: http1
    type: http
    enabled: false
    http:
      url: https://example.com
  - id: queue
    type: SQS
    sqs:
      uri: https://sqs.eu-west-1.amazonaws.com/1/relay
      region: eu-west-1
`)

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	enabled := reg.Enabled()
	if len(enabled) != 1 || enabled[0].ID != "queue" || enabled[0].Type != TypeSQS {
		t.Fatalf("expected only queue enabled, got %#v", enabled)
	}
	hook, ok := reg.ByID("http1")
	if !ok || hook.HTTP.Method != "POST" || hook.HTTP.TimeoutSeconds != httpDefaultTimeoutSeconds {
		t.Fatalf("expected http defaults applied, got %#v", hook.HTTP)
	}
}

func TestLoadRegistryJSON(t *testing.T) {
	path := writeFile(t, "publishers.json", `{"publishers":[{"id":"ps","type":"pubsub","pubsub":{"project_id":"p","topic":"relay-events"}}]}`)

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if all := reg.All(); len(all) != 1 || all[0].PubSub.Topic != "relay-events" {
		t.Fatalf("unexpected registry %#v", all)
	}
}

func TestLoadRegistryRejects(t *testing.T) {
	cases := map[string]string{
		"empty list":   "publishers: []\n",
		"duplicate id": "publishers:\n  - {id: a, type: http, http: {url: https://a.example}}\n  - {id: a, type: http, http: {url: https://b.example}}\n",
		"bad yaml":     "publishers: [\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadRegistry(writeFile(t, "publishers.yaml", content)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestValidateRequiresTypeSpecificFields(t *testing.T) {
	cases := map[string]PublisherConfig{
		"no id":                {Type: TypeHTTP, HTTP: &HTTPPublisherConfig{URL: "https://example.com"}},
		"no type":              {ID: "a"},
		"http missing block":   {ID: "a", Type: TypeHTTP},
		"http without url":     {ID: "a", Type: TypeHTTP, HTTP: &HTTPPublisherConfig{}},
		"sqs without region":   {ID: "a", Type: TypeSQS, SQS: &SQSPublisherConfig{QueueURL: "https://sqs.example/q"}},
		"sns without arn":      {ID: "a", Type: TypeSNS, SNS: &SNSPublisherConfig{Region: "eu-west-1"}},
		"pubsub without topic": {ID: "b", Type: TypePubSub, PubSub: &PubSubPublisherConfig{ProjectID: "p"}},
		"pubsub missing block": {ID: "b", Type: TypePubSub},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			cfg.normalize()
			if err := cfg.validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateReportsAllMissingFields(t *testing.T) {
	cfg := PublisherConfig{ID: "t", Type: TypeSNS, SNS: &SNSPublisherConfig{}}
	err := cfg.validate()
	if err == nil || err.Error() != `sns.region, sns.topic_arn required for publisher "t"` {
		t.Fatalf("unexpected error %v", err)
	}
}
