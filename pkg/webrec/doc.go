// Package webrec records microphone audio into a selectable encoding and
// publishes each recording as a playable, downloadable artifact.
//
// # Overview
//
// The package provides:
//   - A session controller with a strict one-active-session lifecycle
//   - Microphone capture through PortAudio with a permission policy
//   - WAV, Ogg Vorbis, Opus and MP3 encoders behind one Recorder handle
//   - Signed, expiring object URLs for encoded blobs
//   - A bounded results list that can mirror recordings to disk
//   - Structured logging with Zerolog
//
// # Quick Start
//
//	config := webrec.NewRecorderConfig()
//	capturer := webrec.NewPortAudioCapturer(config, nil)
//	ctrl := webrec.NewController(capturer, config)
//	defer ctrl.Close()
//
//	ctrl.AddRecordingHandler(func(e *webrec.RecordingEntry) {
//		fmt.Println("recorded", e.Filename)
//	})
//
//	if err := ctrl.SetEncoding("mp3"); err != nil {
//		log.Fatal(err)
//	}
//	ctrl.Start()
//	time.Sleep(5 * time.Second)
//	ctrl.Stop()
//
// # Session Lifecycle
//
// A session moves Idle → Requesting → Capturing → Encoding → Complete.
// A failed microphone request moves it from Requesting to Failed. Start
// disables the record control and enables stop before the microphone
// request resolves; Stop does the reverse immediately and lets the encoder
// finish in the background. Complete and Failed both allow a new Start.
// Nothing is retried automatically.
//
// # Capture Errors
//
// Microphone failures carry a *CaptureError. Code 1 means permission was
// denied and code 5 means the device is unavailable; DescribeCaptureError
// turns any failure into the message shown to the user.
//
// # Encoders
//
// Encodings are registered by name; the name doubles as the file
// extension:
//
//	wav   go-audio/wav, 16-bit PCM
//	opus  libopus via gopus, Ogg container from pion
//	ogg   Vorbis through an ffmpeg worker process
//	mp3   LAME through an ffmpeg worker process
//
// The ffmpeg worker is looked up in RecorderConfig.WorkerDir, or on $PATH
// when that is empty.
//
// # Configuration
//
// NewRecorderConfig applies defaults, then a .env file, then WEBREC_*
// environment variables:
//
//	WEBREC_DEFAULT_ENCODING=ogg
//	WEBREC_TIME_LIMIT=120
//	WEBREC_MIC_PERMISSION=prompt
//	WEBREC_SAVE_RECORDINGS=true
//	WEBREC_OUTPUT_DIR=./recordings
package webrec
