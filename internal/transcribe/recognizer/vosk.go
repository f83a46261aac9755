//go:build vosk

package recognizer

/*
#cgo LDFLAGS: -lvosk
#include <stdlib.h>
#include <vosk_api.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

var silenceOnce sync.Once

// NativeAvailable reports whether the vosk backend is compiled in.
func NativeAvailable() bool { return true }

// VoskModel owns a vosk_model handle.
type VoskModel struct {
	mu    sync.Mutex
	model *C.VoskModel
}

// NewVoskModel loads the model directory at path.
func NewVoskModel(path string) (Model, error) {
	silenceOnce.Do(func() { C.vosk_set_log_level(-1) })

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	model := C.vosk_model_new(cPath)
	if model == nil {
		return nil, fmt.Errorf("vosk: failed to load model %s", path)
	}
	return &VoskModel{model: model}, nil
}

// NewRecognizer implements Model.
func (m *VoskModel) NewRecognizer(sampleRate int, grammar string) (Recognizer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.model == nil {
		return nil, errors.New("vosk: model is closed")
	}

	var rec *C.VoskRecognizer
	if grammar == "" {
		rec = C.vosk_recognizer_new(m.model, C.float(sampleRate))
	} else {
		cGrammar := C.CString(grammar)
		defer C.free(unsafe.Pointer(cGrammar))
		rec = C.vosk_recognizer_new_grm(m.model, C.float(sampleRate), cGrammar)
	}
	if rec == nil {
		return nil, errors.New("vosk: failed to create recognizer")
	}
	return &voskRecognizer{rec: rec}, nil
}

// Close frees the model. Recognizers created from it keep their own reference.
func (m *VoskModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.model != nil {
		C.vosk_model_free(m.model)
		m.model = nil
	}
	return nil
}

type voskRecognizer struct {
	rec *C.VoskRecognizer
}

func (r *voskRecognizer) AcceptWaveform(chunk []byte) (bool, error) {
	if len(chunk) == 0 {
		return false, nil
	}
	ret := C.vosk_recognizer_accept_waveform(r.rec, (*C.char)(unsafe.Pointer(&chunk[0])), C.int(len(chunk)))
	if ret < 0 {
		return false, errors.New("vosk: accept waveform failed")
	}
	return ret == 1, nil
}

func (r *voskRecognizer) Result() (string, error) {
	return ParseText(C.GoString(C.vosk_recognizer_result(r.rec)))
}

func (r *voskRecognizer) FinalResult() (string, error) {
	return ParseText(C.GoString(C.vosk_recognizer_final_result(r.rec)))
}

func (r *voskRecognizer) Close() error {
	if r.rec != nil {
		C.vosk_recognizer_free(r.rec)
		r.rec = nil
	}
	return nil
}
