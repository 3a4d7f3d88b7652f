package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeTypeValidate(t *testing.T) {
	for _, nt := range NodeTypes {
		assert.NoError(t, nt.Validate(), nt)
		assert.NotEqual(t, "Unknown", nt.Label())
	}
	assert.Error(t, NodeType("input").Validate())
	assert.Error(t, NodeType("").Validate())
}

func TestRelTypeValidate(t *testing.T) {
	for _, rt := range RelTypes {
		assert.NoError(t, rt.Validate(), rt)
	}
	assert.Error(t, RelType("USES").Validate())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "proc:wccuds1", NodeKey(NodeProc, "wccuds1"))
	assert.Equal(t, "wccuds1", SplitKey("proc:wccuds1"))
	assert.Equal(t, "a:b", SplitKey("script:a:b"))
	assert.Equal(t, "plain", SplitKey("plain"))
}

func TestEvidenceRoundTrip(t *testing.T) {
	raw, err := MarshalEvidence(&Evidence{File: "procs/a.procs", LineNo: Line(12), LineText: "__Shell Script: /home/master/a.sh"})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"file":"procs/a.procs","line_no":12,"line_text":"__Shell Script: /home/master/a.sh"}`, raw)

	ev := UnmarshalEvidence(raw)
	if assert.NotNil(t, ev) {
		assert.Equal(t, 12, *ev.LineNo)
	}

	empty, err := MarshalEvidence(nil)
	assert.NoError(t, err)
	assert.Equal(t, "", empty)
	assert.Nil(t, UnmarshalEvidence(""))
	assert.Nil(t, UnmarshalEvidence("{not json"))

	noLine := UnmarshalEvidence(`{"file":"x","line_no":null,"line_text":"refer to y"}`)
	if assert.NotNil(t, noLine) {
		assert.Nil(t, noLine.LineNo)
	}
}

func TestStatsTotals(t *testing.T) {
	s := Stats{
		NodesByType: map[string]int{"proc": 2, "script": 3},
		EdgesByType: map[string]int{"RUNS": 3, "READS": 1},
	}
	assert.Equal(t, 5, s.TotalNodes())
	assert.Equal(t, 4, s.TotalEdges())
}
