package events

// Event names carried on the realtime channel. The server is the single
// source of truth for game progression; clients emit requests and react
// to whatever arrives.

// Outbound events (client -> server)
const (
	EventCreateGame        = "create_game"
	EventReconnectHost     = "reconnect_host"
	EventJoinGame          = "join_game"
	EventSubmitAnswer      = "submit_answer"
	EventSubmitTopic       = "submit_topic"
	EventRequestPlayerList = "request_player_list"
)

// Inbound events (server -> client)
const (
	EventUpdatePlayerList  = "update_player_list"
	EventGameCreated       = "game_created"
	EventHostReconnected   = "host_reconnected"
	EventQuestionStart     = "question_start"
	EventPlayerAnswered    = "player_answered"
	EventRoundReveal       = "round_reveal"
	EventUpdateLeaderboard = "update_leaderboard"
	EventRoundStart        = "round_start"
	EventTopicRequest      = "topic_request"
	EventTopicWaiting      = "topic_waiting"
	EventTopicChosen       = "topic_chosen"
	EventRoundOver         = "round_over"
	EventGameStarted       = "game_started"
	EventGameOver          = "game_over"
	EventError             = "error"
)

// GameStateOver is the terminal game state reported in a host_reconnected
// response. A session resumed into this state must be purged, not restored.
const GameStateOver = "GAME_OVER"
