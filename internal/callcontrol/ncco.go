package callcontrol

// Instruction is a single NCCO-style action in the ordered list returned to
// the call-control provider to steer a live call.
type Instruction struct {
	Action string `json:"action"`

	// talk
	Text    string `json:"text,omitempty"`
	Voice   string `json:"voice,omitempty"`
	BargeIn *bool  `json:"bargeIn,omitempty"`

	// input
	Type     []string        `json:"type,omitempty"`
	EventURL []string        `json:"eventUrl,omitempty"`
	Speech   *SpeechSettings `json:"speech,omitempty"`
	DTMF     *DTMFSettings   `json:"dtmf,omitempty"`

	// connect
	Endpoint []Endpoint `json:"endpoint,omitempty"`
	From     string     `json:"from,omitempty"`
	Timeout  int        `json:"timeout,omitempty"`

	// record
	BeepStart    bool   `json:"beepStart,omitempty"`
	EndOnSilence int    `json:"endOnSilence,omitempty"`
	Format       string `json:"format,omitempty"`

	// stream (hold music). Loop is a pointer so an explicit 0 (loop until
	// the call is updated) survives serialization.
	StreamURL []string `json:"streamUrl,omitempty"`
	Loop      *int     `json:"loop,omitempty"`
}

// Instructions is the ordered action list serialized as the webhook response
// body for flow-controlling callback types.
type Instructions []Instruction

// SpeechSettings configures speech recognition on an input action
type SpeechSettings struct {
	EndOnSilence float64  `json:"endOnSilence,omitempty"`
	Language     string   `json:"language,omitempty"`
	Context      []string `json:"context,omitempty"`
}

// DTMFSettings configures keypad capture on an input action
type DTMFSettings struct {
	MaxDigits    int  `json:"maxDigits,omitempty"`
	TimeOut      int  `json:"timeOut,omitempty"`
	SubmitOnHash bool `json:"submitOnHash,omitempty"`
}

// Endpoint is a connect target
type Endpoint struct {
	Type         string `json:"type"`
	Number       string `json:"number,omitempty"`
	OnAnswerURL  string `json:"onAnswer,omitempty"`
	WhisperText  string `json:"whisper,omitempty"`
}

// Talk builds a speak action. Barge-in is enabled so the caller can
// interrupt long prompts.
func Talk(text, voice string) Instruction {
	bargeIn := true
	return Instruction{
		Action:  "talk",
		Text:    text,
		Voice:   voice,
		BargeIn: &bargeIn,
	}
}

// Listen builds an input action capturing speech and DTMF, reporting to
// eventURL when input (or its absence) is recognized.
func Listen(eventURL string) Instruction {
	return Instruction{
		Action:   "input",
		Type:     []string{"speech", "dtmf"},
		EventURL: []string{eventURL},
		Speech: &SpeechSettings{
			EndOnSilence: 1.5,
		},
		DTMF: &DTMFSettings{
			MaxDigits: 1,
			TimeOut:   5,
		},
	}
}

// Connect builds a transfer action to a phone endpoint.
func Connect(number, callerID, whisper string, timeoutSec int) Instruction {
	return Instruction{
		Action:  "connect",
		From:    callerID,
		Timeout: timeoutSec,
		Endpoint: []Endpoint{{
			Type:        "phone",
			Number:      number,
			WhisperText: whisper,
		}},
	}
}

// Record builds a record action for voicemail capture.
func Record(eventURL string) Instruction {
	return Instruction{
		Action:       "record",
		EventURL:     []string{eventURL},
		BeepStart:    true,
		EndOnSilence: 3,
		Format:       "mp3",
	}
}

// Stream builds a looping hold-music action.
func Stream(url string) Instruction {
	loop := 0
	return Instruction{
		Action:    "stream",
		StreamURL: []string{url},
		Loop:      &loop,
	}
}

// HasAction reports whether the list contains an action of the given type.
func (ins Instructions) HasAction(action string) bool {
	for _, i := range ins {
		if i.Action == action {
			return true
		}
	}
	return false
}

// FirstAction returns the first action of the given type, if present.
func (ins Instructions) FirstAction(action string) (Instruction, bool) {
	for _, i := range ins {
		if i.Action == action {
			return i, true
		}
	}
	return Instruction{}, false
}
