package webrec

import (
	"math"
	"sync"
	"time"
)

// Factory functions for common handlers

func CreateLoggingStateHandler(logger *RecorderLogger) StateHandler {
	return func(s StateSnapshot) {
		logger.WithFields(map[string]interface{}{
			"session_id":      s.SessionID,
			"status":          string(s.Status),
			"encoding":        s.Encoding,
			"record_disabled": s.Controls.RecordDisabled,
			"stop_disabled":   s.Controls.StopDisabled,
		}).Debug("Recorder state changed")
	}
}

func CreateRecordingLogHandler(logger *RecorderLogger) RecordingHandler {
	return func(entry *RecordingEntry) {
		logger.WithFields(map[string]interface{}{
			"id":       entry.ID,
			"filename": entry.Filename,
			"size":     entry.Size,
		}).Info("Recording ready")
	}
}

func CreateErrorLoggingHandler(logger *RecorderLogger) ErrorHandler {
	return func(err *RecorderError) {
		if err != nil {
			logger.LogError(err)
		}
	}
}

// CreateAudioLevelMonitor reports the mean absolute and peak level of each
// frame, normalised to [0,1].
func CreateAudioLevelMonitor(callback func(avg, peak float32)) AudioFrameHandler {
	return func(data []int16) {
		if len(data) == 0 || callback == nil {
			return
		}
		var sum float64
		var peak float64
		for _, v := range data {
			abs := math.Abs(float64(v)) / 32768.0
			sum += abs
			if abs > peak {
				peak = abs
			}
		}
		callback(float32(sum/float64(len(data))), float32(peak))
	}
}

// CreateThrottledLevelMonitor is CreateAudioLevelMonitor limited to one
// callback per interval, keeping the loudest peak seen in between.
func CreateThrottledLevelMonitor(interval time.Duration, callback func(avg, peak float32)) AudioFrameHandler {
	var mu sync.Mutex
	var last time.Time
	var peakSince float32

	return CreateAudioLevelMonitor(func(avg, peak float32) {
		mu.Lock()
		if peak > peakSince {
			peakSince = peak
		}
		if time.Since(last) < interval {
			mu.Unlock()
			return
		}
		last = time.Now()
		p := peakSince
		peakSince = 0
		mu.Unlock()

		callback(avg, p)
	})
}

func CreateAudioSilenceDetector(threshold float32, silenceDuration time.Duration, callback func()) AudioFrameHandler {
	var mu sync.Mutex
	var silenceStart time.Time

	return CreateAudioLevelMonitor(func(avg, _ float32) {
		mu.Lock()
		defer mu.Unlock()

		if avg >= threshold {
			silenceStart = time.Time{}
			return
		}
		if silenceStart.IsZero() {
			silenceStart = time.Now()
		} else if time.Since(silenceStart) >= silenceDuration {
			callback()
			silenceStart = time.Time{}
		}
	})
}

func ChainStateHandlers(handlers ...StateHandler) StateHandler {
	return func(s StateSnapshot) {
		for _, h := range handlers {
			if h != nil {
				h(s)
			}
		}
	}
}

func ChainRecordingHandlers(handlers ...RecordingHandler) RecordingHandler {
	return func(entry *RecordingEntry) {
		for _, h := range handlers {
			if h != nil {
				h(entry)
			}
		}
	}
}
