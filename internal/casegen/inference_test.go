package casegen

import (
	"strings"
	"testing"
)

const (
	fencingDetail  = "The left arm was noted to be extended in a fencing posture during the tonic phase"
	recoveryDetail = "Following the episode, there was a brief period of confusion lasting 1-2 minutes before full recovery"
	umnDetail      = "The weakness followed an upper motor neuron pattern with increased tone and hyperreflexia"
)

func TestEnhanceWithInferences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "nose rubbing implies contralateral fencing posture",
			text: "A 30-year-old man has right side nose rubbing during seizures. Which lobe is involved?",
			want: "A 30-year-old man has right side nose rubbing during seizures. " + fencingDetail + ". Which lobe is involved?",
		},
		{
			name: "detail already stated",
			text: "The patient has right side nose rubbing and a fencing posture. Which lobe is involved?",
			want: "The patient has right side nose rubbing and a fencing posture. Which lobe is involved?",
		},
		{
			name: "hemiparesis",
			text: "A man has right hemiparesis. Where is the lesion?",
			want: "A man has right hemiparesis. " + umnDetail + ". Where is the lesion?",
		},
		{
			name: "single sentence is appended to",
			text: "Sudden onset of aphasia.",
			want: "Sudden onset of aphasia. The symptoms reached maximum severity within minutes of onset",
		},
		{
			name: "visual phenomena without a seizure context",
			text: "A woman reports colorful spots in her vision. What is the cause?",
			want: "A woman reports colorful spots in her vision. What is the cause?",
		},
		{
			name: "no triggers",
			text: "A 68-year-old man has dysarthria. MRI shows a left internal capsule infarct. Which artery is involved?",
			want: "A 68-year-old man has dysarthria. MRI shows a left internal capsule infarct. Which artery is involved?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EnhanceWithInferences(tt.text, ""); got != tt.want {
				t.Errorf("got  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestEnhanceWithInferences_SeizureRecovery(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"adult", "A 40-year-old man has seizure episodes lasting seconds. What is the diagnosis?", true},
		{"child with visual hallucinations", "An 8-year-old girl has seizure episodes lasting seconds with visual hallucinations of colorful circles. What is the diagnosis?", false},
		{"visual aura with preserved awareness", "A 25-year-old woman has visual hallucinations while fully alert during a seizure lasting minutes. What is the diagnosis?", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EnhanceWithInferences(tt.text, "")
			if strings.Contains(got, recoveryDetail) != tt.want {
				t.Errorf("recovery detail present = %v, want %v: %q", !tt.want, tt.want, got)
			}
		})
	}
}

func TestApplyInferences_UsesQuestionContext(t *testing.T) {
	presentation := "A 9-year-old sees colorful visual phenomena. What is the diagnosis?"

	if _, applied := ApplyInferences(presentation, ""); len(applied) != 0 {
		t.Fatalf("expected no inferences without a seizure context, got %+v", applied)
	}

	got, applied := ApplyInferences(presentation, "Which epilepsy syndrome explains these seizures?")
	if len(applied) != 1 || applied[0].Category != "examination_findings" {
		t.Fatalf("applied = %+v", applied)
	}
	if !strings.Contains(got, "Visual fields are intact") {
		t.Errorf("examination detail missing: %q", got)
	}
}

func TestKeyPhrases(t *testing.T) {
	got := keyPhrases(fencingDetail)
	if len(got) != 2 || got[0] != "fencing posture" || got[1] != "tonic phase" {
		t.Errorf("key phrases = %v", got)
	}
}
