package signals

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRules = `
rules:
  - id: MISSING_ID
    severity: E
    category: CONFIG
    patterns:
      - 'message id (?P<message_id>\d+) not found'
    hints: [check mapping]
  - id: REFUSED
    severity: F
    category: NETWORK
    patterns:
      - 'connection refused'
  - id: BROKEN
    patterns:
      - '(unclosed'
  - id: NOISE
    severity: W
    patterns:
      - 'retrying'
      - '([bad'
`

func TestParse(t *testing.T) {
	rs, err := Parse([]byte(testRules))
	require.NoError(t, err)

	assert.Equal(t, []string{"MISSING_ID", "REFUSED", "NOISE"}, rs.IDs())
	assert.Len(t, rs.Skipped, 3)

	_, err = Parse([]byte("other: []"))
	assert.Error(t, err)

	_, err = Parse([]byte("rules: [unclosed"))
	assert.Error(t, err)
}

func TestDefaultRules(t *testing.T) {
	rs, err := Default()
	require.NoError(t, err)
	assert.Empty(t, rs.Skipped)
	assert.Contains(t, rs.IDs(), MissingMessageRule)

	found := rs.Extract("2024-01-02 message id 1234 not found in InfoTrac", ExtractOptions{})
	require.NotEmpty(t, found)
	assert.Equal(t, MissingMessageRule, found[0].ID)
	assert.Equal(t, "1234", found[0].Captures["message_id"])
}

func TestExtract(t *testing.T) {
	rs, err := Parse([]byte(testRules))
	require.NoError(t, err)

	log := strings.Join([]string{
		"start",
		"  message id 42 not found  ",
		"retrying",
		"message id 42 not found",
		"message id 7 not found",
		"",
		"Connection refused by host",
	}, "\n")

	found := rs.Extract(log, ExtractOptions{})
	require.Len(t, found, 4)

	// F before E before W
	assert.Equal(t, "REFUSED", found[0].ID)
	assert.Equal(t, 7, found[0].Evidence[0].LineNo)
	assert.Equal(t, 43.0, found[0].Score)

	assert.Equal(t, "MISSING_ID", found[1].ID)
	assert.Equal(t, "MISSING_ID", found[2].ID)
	assert.Equal(t, 37.0, found[1].Score)

	var id42 Signal
	for _, s := range found {
		if s.Captures["message_id"] == "42" {
			id42 = s
		}
	}
	require.Len(t, id42.Evidence, 2)
	assert.Equal(t, "message id 42 not found", id42.Evidence[0].LineText)
	assert.Equal(t, []int{2, 4}, []int{id42.Evidence[0].LineNo, id42.Evidence[1].LineNo})

	assert.Equal(t, "NOISE", found[3].ID)
	assert.Equal(t, 21.0, found[3].Score)
}

func TestExtractLimits(t *testing.T) {
	rs, err := Parse([]byte(testRules))
	require.NoError(t, err)

	long := "retrying " + strings.Repeat("x", 50)
	text := strings.Repeat(long+"\n", 8)

	found := rs.Extract(text, ExtractOptions{MaxEvidence: 3, MaxLineLength: 10})
	require.Len(t, found, 1)
	assert.Len(t, found[0].Evidence, 3)
	assert.Equal(t, "retrying x...", found[0].Evidence[0].LineText)
}

func TestNilRuleSet(t *testing.T) {
	var rs *RuleSet
	assert.Equal(t, 0, rs.Len())
	assert.Nil(t, rs.Extract("connection refused", ExtractOptions{}))
}

func TestServices(t *testing.T) {
	text := `url=/api?services=estmt|Paper|x
GET /service/print/job
{"service_type": "archive"}`
	assert.Equal(t, []string{"archive", "estmt", "paper", "print"}, Services(text))
	assert.Empty(t, Services("nothing here"))
}

func TestMissingMessageIDs(t *testing.T) {
	found := []Signal{
		{ID: MissingMessageRule, Captures: map[string]string{"message_id": "9"}},
		{ID: "OTHER", Captures: map[string]string{"message_id": "1"}},
		{ID: MissingMessageRule, Captures: map[string]string{"message_id": "9"}},
		{ID: MissingMessageRule, Captures: map[string]string{"message_id": "3"}},
	}
	assert.Equal(t, []string{"9", "3"}, MissingMessageIDs(found))
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		template string
		values   map[string]string
		want     string
	}{
		{"all present", "id {a} svc {b}", map[string]string{"a": "1", "b": "x"}, "id 1 svc x"},
		{"missing placeholder", "id {a} svc {b}", map[string]string{"a": "1"}, "id {a} svc {b}"},
		{"no placeholders", "plain", nil, "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.template, tt.values))
		})
	}
}
