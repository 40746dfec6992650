package httpapi

import (
	"encoding/json"
	"strings"

	"pkt.systems/termsync/schema"
)

func outputUpdate(id schema.TerminalID, entry *terminalEntry, now schema.Timestamp) (schema.TerminalUpdate, error) {
	data, err := json.Marshal(schema.OutputData{
		Content: strings.Join(entry.visibleLines(), "\n"),
		Cursor:  entry.cursor(),
	})
	if err != nil {
		return schema.TerminalUpdate{}, err
	}
	return schema.TerminalUpdate{
		TerminalID: id,
		EventType:  schema.UpdateOutput,
		Data:       data,
		Timestamp:  now,
	}, nil
}

func rosterMessage(terminals []schema.Terminal) (schema.RosterMessage, error) {
	if terminals == nil {
		terminals = []schema.Terminal{}
	}
	data, err := json.Marshal(terminals)
	if err != nil {
		return schema.RosterMessage{}, err
	}
	return schema.RosterMessage{Type: schema.RosterTerminals, Data: data}, nil
}
