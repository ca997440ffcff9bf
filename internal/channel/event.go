package channel

// Status identifies the kind of a status event.
type Status string

const (
	StatusStarted  Status = "STARTED"
	StatusAdding   Status = "ADDING"
	StatusAdded    Status = "ADDED"
	StatusComplete Status = "COMPLETE"
	StatusError    Status = "ERROR"
)

// ipfsScheme prefixes content identifiers reported to clients.
const ipfsScheme = "ipfs://"

// Event is a single status update pushed to a client. Which of the optional
// fields are set depends on Status.
type Event struct {
	Status Status `json:"status"`

	// Filename is set on ADDING and ADDED.
	Filename string `json:"filename,omitempty"`

	// IPFSHash is set on ADDED and always carries the ipfs:// scheme.
	IPFSHash string `json:"ipfsHash,omitempty"`

	// Message is set on ERROR.
	Message string `json:"message,omitempty"`
}

func Started() Event { return Event{Status: StatusStarted} }

func Adding(filename string) Event {
	return Event{Status: StatusAdding, Filename: filename}
}

// Added reports that filename was stored under the content identifier cid.
func Added(filename, cid string) Event {
	return Event{Status: StatusAdded, Filename: filename, IPFSHash: ipfsScheme + cid}
}

func Complete() Event { return Event{Status: StatusComplete} }

func Error(message string) Event {
	return Event{Status: StatusError, Message: message}
}
