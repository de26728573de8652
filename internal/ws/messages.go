package ws

import "encoding/json"

// Kind - тип входящего сообщения; закрытый набор констант ниже,
// таблица обработчиков в Registry заполняется по ним при старте
type Kind string

const (
	KindJoin        Kind = "join"
	KindFindGame    Kind = "findGame"
	KindCancelQueue Kind = "cancelQueue"
	KindMove        Kind = "move"
	KindRejoin      Kind = "rejoin"

	// непрозрачные виды для голосового канала: ядро пересылает их второму
	// участнику сессии как есть, не заглядывая в полезную нагрузку
	KindVoiceRequest    Kind = "voice_request"
	KindVoiceAccept     Kind = "voice_accept"
	KindVoiceDecline    Kind = "voice_decline"
	KindRTCOffer        Kind = "rtc_offer"
	KindRTCAnswer       Kind = "rtc_answer"
	KindRTCIceCandidate Kind = "rtc_ice_candidate"
)

// RelayKinds перечисляет виды, которые ретранслируются без интерпретации
var RelayKinds = []Kind{
	KindVoiceRequest,
	KindVoiceAccept,
	KindVoiceDecline,
	KindRTCOffer,
	KindRTCAnswer,
	KindRTCIceCandidate,
}

// входящее сообщение клиента; поля заполняются в зависимости от Type
type ClientMessage struct {
	Type      Kind            `json:"type"`
	Username  string          `json:"username,omitempty"`
	Column    *int            `json:"column,omitempty"`
	GameID    string          `json:"gameId,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Message - исходящее сообщение; при сериализации поля Payload
// поднимаются на верхний уровень рядом с type
type Message struct {
	Type    string
	Payload map[string]any
}

func (m Message) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Payload)+1)
	for k, v := range m.Payload {
		out[k] = v
	}
	out["type"] = m.Type
	return json.Marshal(out)
}

// ErrorMessage - стандартный ответ об ошибке протокола или валидации
func ErrorMessage(text string) Message {
	return Message{Type: "error", Payload: map[string]any{"message": text}}
}
