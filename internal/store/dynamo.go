package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"chat-sync-engine/internal/database"
	"chat-sync-engine/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// RemoteStore is the production Store: DynamoDB for the append-only
// message/session log, Redis pub/sub for the change feeds.
type RemoteStore struct {
	db   *database.Database
	link *RedisLink
	now  func() time.Time
}

func NewRemoteStore(db *database.Database, link *RedisLink, now func() time.Time) *RemoteStore {
	if now == nil {
		now = time.Now
	}
	return &RemoteStore{
		db:   db,
		link: link,
		now:  now,
	}
}

func (s *RemoteStore) CreateCustomer(ctx context.Context, info CustomerInfo) (model.CustomerItem, error) {
	customer := model.CustomerItem{
		CustomerID: uuid.NewString(),
		Name:       strings.TrimSpace(info.Name),
		Email:      strings.ToLower(strings.TrimSpace(info.Email)),
		Phone:      strings.TrimSpace(info.Phone),
		CreatedAt:  s.now().UTC().Format(time.RFC3339),
	}
	if err := s.db.Client.PutItem(ctx, model.CustomersTable, customer); err != nil {
		return model.CustomerItem{}, err
	}
	return customer, nil
}

func (s *RemoteStore) FindCustomerByEmail(ctx context.Context, email string) (model.CustomerItem, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	items, err := s.db.Client.QueryItems(
		ctx,
		model.CustomersTable,
		aws.String("byEmail"),
		"email = :email",
		map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: email},
		},
		nil,
		nil,
		nil,
	)
	if err != nil && !isIndexNotFound(err) {
		return model.CustomerItem{}, err
	}

	if (err != nil && isIndexNotFound(err)) || items == nil {
		items, err = s.db.Client.ScanItems(
			ctx,
			model.CustomersTable,
			"email = :email",
			map[string]types.AttributeValue{
				":email": &types.AttributeValueMemberS{Value: email},
			},
			nil,
		)
		if err != nil {
			return model.CustomerItem{}, err
		}
	}

	if len(items) == 0 {
		return model.CustomerItem{}, ErrNotFound
	}

	var customer model.CustomerItem
	if err := attributevalue.UnmarshalMap(items[0], &customer); err != nil {
		return model.CustomerItem{}, err
	}
	return customer, nil
}

func (s *RemoteStore) CreateSession(ctx context.Context, customerID string, meta SessionMeta) (model.SessionItem, error) {
	now := s.now().UTC().Format(time.RFC3339)
	session := model.SessionItem{
		SessionID:  uuid.NewString(),
		CustomerID: customerID,
		Status:     model.SessionStatusWaiting,
		Source:     meta.Source,
		Subject:    meta.Subject,
		CreatedAt:  now,
	}
	if err := s.db.Client.PutItem(ctx, model.SessionsTable, session); err != nil {
		return model.SessionItem{}, err
	}
	return session, nil
}

// FindOpenSession returns the most recent waiting/active session for the
// customer. This is the lookup half of the lookup-before-insert the session
// controller relies on; there is no conditional write backing it.
func (s *RemoteStore) FindOpenSession(ctx context.Context, customerID string) (model.SessionItem, error) {
	scanForward := false
	filter := "#status IN (:waiting, :active)"
	items, err := s.db.Client.QueryItemsWithFilter(
		ctx,
		model.SessionsTable,
		aws.String("byCustomer"),
		"customerId = :customerId",
		&filter,
		map[string]types.AttributeValue{
			":customerId": &types.AttributeValueMemberS{Value: customerID},
			":waiting":    &types.AttributeValueMemberS{Value: string(model.SessionStatusWaiting)},
			":active":     &types.AttributeValueMemberS{Value: string(model.SessionStatusActive)},
		},
		map[string]string{
			"#status": "status",
		},
		&scanForward,
	)
	if err != nil && !isIndexNotFound(err) {
		return model.SessionItem{}, err
	}

	if (err != nil && isIndexNotFound(err)) || items == nil {
		items, err = s.db.Client.ScanItems(
			ctx,
			model.SessionsTable,
			"customerId = :customerId AND #status IN (:waiting, :active)",
			map[string]types.AttributeValue{
				":customerId": &types.AttributeValueMemberS{Value: customerID},
				":waiting":    &types.AttributeValueMemberS{Value: string(model.SessionStatusWaiting)},
				":active":     &types.AttributeValueMemberS{Value: string(model.SessionStatusActive)},
			},
			map[string]string{
				"#status": "status",
			},
		)
		if err != nil {
			return model.SessionItem{}, err
		}
	}

	if len(items) == 0 {
		return model.SessionItem{}, ErrNotFound
	}

	sessions := make([]model.SessionItem, 0, len(items))
	for _, item := range items {
		var session model.SessionItem
		if err := attributevalue.UnmarshalMap(item, &session); err != nil {
			return model.SessionItem{}, err
		}
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt > sessions[j].CreatedAt
	})
	return sessions[0], nil
}

func (s *RemoteStore) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	now := s.now().UTC().Format(time.RFC3339)
	updateExpr := "SET #status = :status"
	exprValues := map[string]types.AttributeValue{
		":status": &types.AttributeValueMemberS{Value: string(status)},
	}
	attrNames := map[string]string{
		"#status": "status",
	}
	switch status {
	case model.SessionStatusClosed:
		updateExpr += ", #closedAt = :now"
		attrNames["#closedAt"] = "closedAt"
		exprValues[":now"] = &types.AttributeValueMemberS{Value: now}
	case model.SessionStatusActive:
		updateExpr += ", #assignedAt = :now"
		attrNames["#assignedAt"] = "assignedAt"
		exprValues[":now"] = &types.AttributeValueMemberS{Value: now}
	}

	var updated model.SessionItem
	err := s.db.Client.UpdateItem(
		ctx,
		model.SessionsTable,
		map[string]types.AttributeValue{
			"sessionId": &types.AttributeValueMemberS{Value: sessionID},
		},
		updateExpr,
		exprValues,
		attrNames,
		&updated,
	)
	if err != nil {
		return err
	}

	// Status changes fan out to every surface watching this customer.
	if payload, err := EncodeSessionEvent(updated); err == nil {
		s.link.Publish(ctx, SessionChannel(updated.CustomerID), payload)
	}
	return nil
}

func (s *RemoteStore) InsertMessage(ctx context.Context, sessionID string, sender model.SenderType, senderID string, messageType model.MessageType, content string) (model.MessageItem, error) {
	messageID := uuid.NewString()
	message := model.MessageItem{
		PK:          model.MessagePK(sessionID, messageID),
		MessageID:   messageID,
		SessionID:   sessionID,
		SenderType:  sender,
		SenderID:    senderID,
		MessageType: messageType,
		Content:     content,
		CreatedAt:   model.FormatTimestamp(s.now()),
	}
	if err := s.db.Client.PutItem(ctx, model.MessagesTable, message); err != nil {
		return model.MessageItem{}, err
	}

	s.touchSession(ctx, sessionID, message.CreatedAt)

	if payload, err := EncodeMessageEvent(message); err == nil {
		s.link.Publish(ctx, MessageChannel(sessionID), payload)
	}
	return message, nil
}

func (s *RemoteStore) touchSession(ctx context.Context, sessionID, lastMessageAt string) {
	_ = s.db.Client.UpdateItem(
		ctx,
		model.SessionsTable,
		map[string]types.AttributeValue{
			"sessionId": &types.AttributeValueMemberS{Value: sessionID},
		},
		"SET #lastMessageAt = :lastMessageAt",
		map[string]types.AttributeValue{
			":lastMessageAt": &types.AttributeValueMemberS{Value: lastMessageAt},
		},
		map[string]string{
			"#lastMessageAt": "lastMessageAt",
		},
		nil,
	)
}

func (s *RemoteStore) ListMessages(ctx context.Context, sessionID string, opts ListOptions) ([]model.MessageItem, error) {
	scanForward := opts.Order != OrderDescending
	keyCond := "sessionId = :sessionId"
	exprValues := map[string]types.AttributeValue{
		":sessionId": &types.AttributeValueMemberS{Value: sessionID},
	}
	if opts.Before != "" {
		keyCond += " AND createdAt < :before"
		exprValues[":before"] = &types.AttributeValueMemberS{Value: opts.Before}
	}

	var limit *int32
	if opts.Limit > 0 {
		n := int32(opts.Limit)
		limit = &n
	}

	items, err := s.db.Client.QueryItems(
		ctx,
		model.MessagesTable,
		aws.String("bySession"),
		keyCond,
		exprValues,
		nil,
		&scanForward,
		limit,
	)
	if err != nil {
		return nil, err
	}

	messages := make([]model.MessageItem, 0, len(items))
	for _, item := range items {
		var message model.MessageItem
		if err := attributevalue.UnmarshalMap(item, &message); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// ListSessions feeds the agent console queue. A table scan is acceptable
// here: the filter keeps only open sessions and the console polls rarely.
func (s *RemoteStore) ListSessions(ctx context.Context, statuses []model.SessionStatus) ([]model.SessionItem, error) {
	if len(statuses) == 0 {
		statuses = []model.SessionStatus{model.SessionStatusWaiting, model.SessionStatusActive}
	}

	placeholders := make([]string, 0, len(statuses))
	values := map[string]types.AttributeValue{}
	for i, status := range statuses {
		ph := fmt.Sprintf(":status%d", i)
		placeholders = append(placeholders, ph)
		values[ph] = &types.AttributeValueMemberS{Value: string(status)}
	}

	items, err := s.db.Client.ScanItems(
		ctx,
		model.SessionsTable,
		fmt.Sprintf("#status IN (%s)", strings.Join(placeholders, ", ")),
		values,
		map[string]string{
			"#status": "status",
		},
	)
	if err != nil {
		return nil, err
	}

	sessions := make([]model.SessionItem, 0, len(items))
	for _, item := range items {
		var session model.SessionItem
		if err := attributevalue.UnmarshalMap(item, &session); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt < sessions[j].CreatedAt
	})
	return sessions, nil
}

func (s *RemoteStore) Subscribe(ctx context.Context, topic Topic, filter string, onEvent func(Event)) (Subscription, error) {
	return s.link.Subscribe(ctx, topic, filter, onEvent)
}

func (s *RemoteStore) ProbeHealth(ctx context.Context) (Health, error) {
	return s.link.ProbeHealth(ctx)
}

func (s *RemoteStore) ForceReconnect(ctx context.Context) error {
	return s.link.ForceReconnect(ctx)
}

func isIndexNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "index") && strings.Contains(msg, "not") && strings.Contains(msg, "found")
}
