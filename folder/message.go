package folder

import (
	"bytes"
	"fmt"
	"time"

	"github.com/creativeprojects/imapview/mailbox"
	"github.com/creativeprojects/imapview/repo"
	"github.com/emersion/go-message"
)

// fallbackIDHeader carries message identity for clients that strip or
// rewrite Message-Id on copy.
const fallbackIDHeader = "X-Unique-Message-Id"

const defaultFromAddress = "no-reply@imapview.local"

// StoredMessage is the protocol-visible view of one message.
type StoredMessage struct {
	UID          int64
	Flags        mailbox.FlagSet
	InternalDate time.Time
	Body         []byte
}

func (m *StoredMessage) Size() int {
	return len(m.Body)
}

// messageIdentity extracts the identity of an RFC822 message from its
// Message-Id header, falling back to the custom header. Empty when the
// message carries neither or cannot be parsed.
func messageIdentity(data []byte) string {
	entity, err := message.Read(bytes.NewReader(data))
	if err != nil && !message.IsUnknownCharset(err) {
		return ""
	}
	if id := entity.Header.Get("Message-Id"); id != "" {
		return id
	}
	return entity.Header.Get(fallbackIDHeader)
}

// findMessageByIdentity resolves a message identity against items already
// in the repository.
func (s *Service) findMessageByIdentity(tx repo.Txn, identity string) (repo.Node, bool, error) {
	if identity == "" {
		return repo.Node{}, false, nil
	}
	targets, err := tx.AssocTargets(s.store.Root(), repo.AssocMessageIndex)
	if err != nil {
		return repo.Node{}, false, err
	}
	for _, id := range targets {
		if !tx.NodeExists(id) {
			// the index can lag behind deletions
			continue
		}
		stored, _, err := attrString(tx, id, repo.AttrMessageID)
		if err != nil {
			return repo.Node{}, false, err
		}
		if stored == identity {
			node, err := tx.Node(id)
			if err != nil {
				return repo.Node{}, false, err
			}
			return node, true, nil
		}
	}
	return repo.Node{}, false, nil
}

// materializeMessage produces the protocol-visible RFC822 bytes of a
// node. An item carrying the message marker is served as stored;
// anything else gets a message synthesized from its attributes.
func (s *Service) materializeMessage(tx repo.Txn, node repo.Node) ([]byte, error) {
	isMessage, err := tx.HasAspect(node.ID, repo.AspectMessage)
	if err != nil {
		return nil, err
	}
	if isMessage {
		return tx.Content(node.ID)
	}
	return s.synthesizeMessage(tx, node)
}

// synthesizeMessage builds a message view for a plain content item, as
// presented by virtual folders.
func (s *Service) synthesizeMessage(tx repo.Txn, node repo.Node) ([]byte, error) {
	author, _, err := attrString(tx, node.ID, repo.AttrAuthor)
	if err != nil {
		return nil, err
	}
	if author == "" {
		author = defaultFromAddress
	}
	subject, _, err := attrString(tx, node.ID, repo.AttrTitle)
	if err != nil {
		return nil, err
	}
	if subject == "" {
		subject = node.Name
	}
	description, _, err := attrString(tx, node.ID, repo.AttrDescription)
	if err != nil {
		return nil, err
	}
	content, err := tx.Content(node.ID)
	if err != nil {
		return nil, err
	}

	var header message.Header
	header.Set("Message-Id", fmt.Sprintf("<node-%d@imapview>", node.ID))
	header.Set("From", author)
	header.Set("Subject", subject)
	header.Set("Date", time.Now().Format(time.RFC1123Z))
	header.Set("Content-Type", "text/plain; charset=utf-8")

	buffer := &bytes.Buffer{}
	writer, err := message.CreateWriter(buffer, header)
	if err != nil {
		return nil, err
	}
	if description != "" {
		if _, err = writer.Write(append([]byte(description), '\r', '\n')); err != nil {
			return nil, err
		}
	}
	if _, err = writer.Write(content); err != nil {
		return nil, err
	}
	if err = writer.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
