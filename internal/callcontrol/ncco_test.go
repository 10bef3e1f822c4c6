package callcontrol

import (
	"encoding/json"
	"testing"
)

func TestTalk_EnablesBargeIn(t *testing.T) {
	ins := Talk("hello there", "en-US-Standard-C")
	if ins.BargeIn == nil || !*ins.BargeIn {
		t.Error("talk should allow barge-in")
	}
	if ins.Text != "hello there" {
		t.Errorf("text = %s", ins.Text)
	}
}

func TestListen_CapturesSpeechAndDTMF(t *testing.T) {
	ins := Listen("https://hooks.example.com/input")
	if len(ins.Type) != 2 {
		t.Fatalf("type = %v", ins.Type)
	}
	if ins.Speech == nil || ins.DTMF == nil {
		t.Fatal("speech and dtmf settings both required")
	}
	if ins.DTMF.MaxDigits != 1 {
		t.Errorf("maxDigits = %d, want single-key menu", ins.DTMF.MaxDigits)
	}
}

func TestStream_LoopsUntilReplaced(t *testing.T) {
	ins := Stream("https://cdn.example.com/hold.mp3")
	if ins.Loop == nil || *ins.Loop != 0 {
		t.Fatalf("loop = %v, want explicit 0 (infinite)", ins.Loop)
	}

	// The explicit zero must reach the wire; the provider's default
	// is to play once.
	data, err := json.Marshal(ins)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	loop, present := decoded["loop"]
	if !present {
		t.Fatalf("loop key missing from serialized stream action: %s", data)
	}
	if loop != float64(0) {
		t.Errorf("serialized loop = %v, want 0", loop)
	}
}

func TestInstructions_SerializeOmitsUnsetFields(t *testing.T) {
	data, err := json.Marshal(Instructions{Talk("hi", "voice-1")})
	if err != nil {
		t.Fatal(err)
	}
	var decoded []map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if _, present := decoded[0]["endpoint"]; present {
		t.Error("talk action leaked connect fields")
	}
	if _, present := decoded[0]["eventUrl"]; present {
		t.Error("talk action leaked input fields")
	}
}

func TestHasActionAndFirstAction(t *testing.T) {
	ins := Instructions{Talk("a", "v"), Listen("https://x")}
	if !ins.HasAction("talk") || !ins.HasAction("input") || ins.HasAction("connect") {
		t.Error("HasAction misreported")
	}
	talk, ok := ins.FirstAction("talk")
	if !ok || talk.Text != "a" {
		t.Errorf("FirstAction = %+v, ok=%v", talk, ok)
	}
	if _, ok := ins.FirstAction("record"); ok {
		t.Error("FirstAction found a missing action")
	}
}
