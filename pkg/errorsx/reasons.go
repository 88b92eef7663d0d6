package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonPermissionDenied ReasonCode = "permission_denied"
	ReasonRecorder         ReasonCode = "recorder"
	ReasonDeviceBusy       ReasonCode = "device_busy"

	ReasonNoSpeechDetected ReasonCode = "no_speech_detected"
	ReasonNetwork          ReasonCode = "network"
	ReasonQuotaExceeded    ReasonCode = "quota_exceeded"
	ReasonSTTTranscribe    ReasonCode = "stt_transcribe"
	ReasonSTTCircuitOpen   ReasonCode = "stt_circuit_open"

	ReasonTTSSynthesize  ReasonCode = "tts_synthesize"
	ReasonTTSCircuitOpen ReasonCode = "tts_circuit_open"
	ReasonPlayback       ReasonCode = "playback"

	ReasonIndexOutOfRange ReasonCode = "index_out_of_range"

	ReasonNewsFetch    ReasonCode = "news_fetch"
	ReasonChatGenerate ReasonCode = "chat_generate"
	ReasonStore        ReasonCode = "store"
)
