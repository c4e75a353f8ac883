package feed

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// Topic: "all", "bet:<id>" ou "account:<endereço>"
type ClientMsg struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// TopicAll recebe todos os eventos do vault
const TopicAll = "all"
