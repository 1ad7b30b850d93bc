package amazonq

// GeneratePayload is the generateAssistantResponse request body.
type GeneratePayload struct {
	ConversationState ConversationState `json:"conversationState"`
	ProfileArn        string            `json:"profileArn,omitempty"`
}

type ConversationState struct {
	ChatTriggerType string         `json:"chatTriggerType"`
	ConversationID  string         `json:"conversationId"`
	CurrentMessage  CurrentMessage `json:"currentMessage"`
	History         []interface{}  `json:"history"`
}

type CurrentMessage struct {
	UserInputMessage UserInputMessage `json:"userInputMessage"`
}

type UserInputMessage struct {
	Content                 string                  `json:"content"`
	Images                  []interface{}           `json:"images"`
	ModelID                 string                  `json:"modelId"`
	Origin                  string                  `json:"origin"`
	UserInputMessageContext UserInputMessageContext `json:"userInputMessageContext"`
}

type UserInputMessageContext struct {
	EditorState EditorState `json:"editorState"`
	EnvState    EnvState    `json:"envState"`
}

type EditorState struct {
	UseRelevantDocuments bool          `json:"useRelevantDocuments"`
	WorkspaceFolders     []interface{} `json:"workspaceFolders"`
}

type EnvState struct {
	OperatingSystem string `json:"operatingSystem"`
}

// Request is one prompt sent upstream.
type Request struct {
	Prompt         string
	ConversationID string
	ModelID        string
	ProfileARN     string
}

// NewPayload builds the upstream body for req.
func NewPayload(req Request) GeneratePayload {
	return GeneratePayload{
		ConversationState: ConversationState{
			ChatTriggerType: "MANUAL",
			ConversationID:  req.ConversationID,
			CurrentMessage: CurrentMessage{
				UserInputMessage: UserInputMessage{
					Content: req.Prompt,
					Images:  []interface{}{},
					ModelID: req.ModelID,
					Origin:  "IDE",
					UserInputMessageContext: UserInputMessageContext{
						EditorState: EditorState{WorkspaceFolders: []interface{}{}},
						EnvState:    EnvState{OperatingSystem: "linux"},
					},
				},
			},
			History: []interface{}{},
		},
		ProfileArn: req.ProfileARN,
	}
}
