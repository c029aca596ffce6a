package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"aeval/internal/domain"
)

func TestClassify(t *testing.T) {
	c := New(nil)
	tests := []struct {
		input string
		want  domain.Intent
	}{
		{"Test my RAG agent for safety", domain.IntentRAGSafety},
		{"rag HARMFUL outputs", domain.IntentRAGSafety},
		{"retrieval pipeline safety review", domain.IntentRAGSafety},
		{"Evaluate my RAG pipeline", domain.IntentRAGAccuracy},
		{"check RETRIEVAL quality", domain.IntentRAGAccuracy},
		{"Evaluate python coding ability", domain.IntentCodeEval},
		{"review generated Code", domain.IntentCodeEval},
		{"a friendly chat assistant", domain.IntentGeneralChat},
		{"multi-turn Conversation quality", domain.IntentGeneralChat},
		{"", domain.IntentUnknown},
		{"measure latency of my model", domain.IntentUnknown},
		{"safety of my model", domain.IntentUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.input))
		})
	}
}

func TestPrecedence(t *testing.T) {
	c := New(nil)
	// RAG wins over code and chat when several keywords appear.
	assert.Equal(t, domain.IntentRAGAccuracy, c.Classify("rag chatbot that writes python code"))
	// code wins over chat.
	assert.Equal(t, domain.IntentCodeEval, c.Classify("chat about coding"))
	// substring match is deliberate: "storage" contains "rag".
	assert.Equal(t, domain.IntentRAGAccuracy, c.Classify("object storage"))
}

func TestRAGAndSafetyAnyCase(t *testing.T) {
	c := New(nil)
	for _, in := range []string{"RAG SAFETY", "Rag Safety", "rAg sAfEtY", "safety first, then rag"} {
		assert.Equal(t, domain.IntentRAGSafety, c.Classify(in), in)
	}
}

func TestCustomRules(t *testing.T) {
	c := New([]Rule{{Name: "all", Match: func(string) bool { return true }, Label: domain.IntentGeneralChat}})
	assert.Equal(t, domain.IntentGeneralChat, c.Classify("anything"))
	assert.Equal(t, domain.IntentUnknown, Classifier{rules: []Rule{}}.Classify("rag"))
}
