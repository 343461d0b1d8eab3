// Command inspect dumps the circle store for debugging: sessions, turn
// states, participants and recent messages, grouped per prefix.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"github.com/dsgolman/supportai-bot-sub000/domain"
	"github.com/dsgolman/supportai-bot-sub000/repositories"
)

func main() {
	dbPath := flag.String("db", "/tmp/badger", "Path to badger DB")
	prefix := flag.String("prefix", repositories.PrefixSession, "Prefix to scan")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Status", "Detail", "Updated"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if err := item.Value(func(v []byte) error {
				status, detail, updated := describe(*prefix, v)
				table.Append([]string{key, status, detail, updated})
				return nil
			}); err != nil {
				fmt.Printf("Error reading key %s: %v\n", key, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Error while scanning: ", err)
	}

	header := fmt.Sprintf(" Circle store — prefix %q ", *prefix)
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(header))
	table.Render()
}

// describe renders one row per prefix family; unknown prefixes fall back
// to the raw JSON value.
func describe(prefix string, value []byte) (status, detail, updated string) {
	switch prefix {
	case repositories.PrefixSession:
		var s domain.Session
		if err := json.Unmarshal(value, &s); err == nil {
			return colorStatus(s.Status),
				fmt.Sprintf("conversation=%s attempts=%d", s.ConversationID, s.ReconnectAttempts),
				s.UpdatedAt.Format(time.RFC3339)
		}
	case repositories.PrefixTurn:
		var t domain.TurnState
		if err := json.Unmarshal(value, &t); err == nil {
			return string(t.Phase()),
				fmt.Sprintf("speaker=%q queued=%d", t.CurrentSpeaker, len(t.Queue)),
				""
		}
	case repositories.PrefixParticipant:
		var p domain.Participant
		if err := json.Unmarshal(value, &p); err == nil {
			return fmt.Sprintf("stage=%v hand=%v", p.OnStage, p.HandRaised),
				p.DisplayName,
				p.JoinedAt.Format(time.RFC3339)
		}
	case repositories.PrefixMessage:
		var m domain.Message
		if err := json.Unmarshal(value, &m); err == nil {
			return string(m.Kind), m.Body, m.CreatedAt.Format(time.RFC3339)
		}
	}
	return "?", string(value), ""
}

func colorStatus(s domain.SessionStatus) string {
	switch s {
	case domain.SessionConnected:
		return color.Green.Render(string(s))
	case domain.SessionError, domain.SessionDisconnected:
		return color.Red.Render(string(s))
	default:
		return color.Yellow.Render(string(s))
	}
}
