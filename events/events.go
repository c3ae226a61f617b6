// Package events is the collaborator-facing surface of the realtime
// server: domain services call it to push changes to connected clients
// without touching the hub directly.
package events

import (
	"fmt"
	"log/slog"

	"github.com/TonniChopper/Project-Manager/domain"
)

// Room key helpers for the domain entity kinds clients subscribe to.
func ProjectRoom(id int64) string { return fmt.Sprintf("project:%d", id) }
func ChannelRoom(id int64) string { return fmt.Sprintf("channel:%d", id) }
func TaskRoom(id int64) string    { return fmt.Sprintf("task:%d", id) }

type Service struct {
	hub domain.Broadcaster
}

func NewService(hub domain.Broadcaster) *Service {
	return &Service{hub: hub}
}

// Broadcast pushes an event into a room, fire-and-forget.
func (s *Service) Broadcast(eventType, room string, data map[string]any, sender string) {
	s.hub.Broadcast(room, domain.Envelope{Type: eventType, Data: data}, sender)
	slog.Info("event broadcast", "type", eventType, "room", room)
}

// NotifyUser delivers a notification to every active connection of one
// user. Delivery is local to this instance; user notifications are not
// room-scoped and do not travel over the relay.
func (s *Service) NotifyUser(userID int64, notificationType string, data map[string]any) {
	s.hub.NotifyUser(userID, domain.Envelope{
		Type: "notification." + notificationType,
		Data: data,
	})
	slog.Info("notification sent", "userId", userID, "type", notificationType)
}

func (s *Service) TaskCreated(taskID, projectID int64, task map[string]any, creator string) {
	data := map[string]any{"task_id": taskID}
	for k, v := range task {
		data[k] = v
	}
	s.Broadcast("task.created", ProjectRoom(projectID), data, creator)
}

func (s *Service) TaskUpdated(taskID, projectID int64, changes map[string]any, updater string) {
	s.Broadcast("task.updated", ProjectRoom(projectID), map[string]any{
		"task_id": taskID,
		"changes": changes,
	}, updater)
}

func (s *Service) TaskStatusChanged(taskID, projectID int64, oldStatus, newStatus, changedBy string) {
	s.Broadcast("task.status_changed", ProjectRoom(projectID), map[string]any{
		"task_id":    taskID,
		"old_status": oldStatus,
		"new_status": newStatus,
		"changed_by": changedBy,
	}, changedBy)
}

// TaskAssigned tells the project room and pings the assignee directly.
func (s *Service) TaskAssigned(taskID, projectID, assigneeID int64, assignee, title, assigner string) {
	s.Broadcast("task.assigned", ProjectRoom(projectID), map[string]any{
		"task_id":  taskID,
		"assignee": assignee,
		"title":    title,
	}, assigner)

	s.NotifyUser(assigneeID, "task_assigned", map[string]any{
		"task_id":     taskID,
		"task_title":  title,
		"assigned_by": assigner,
		"project_id":  projectID,
	})
}

func (s *Service) MessageNew(channelID, messageID int64, message map[string]any, author string) {
	data := map[string]any{"message_id": messageID}
	for k, v := range message {
		data[k] = v
	}
	s.Broadcast("message.new", ChannelRoom(channelID), data, author)
}

func (s *Service) MessageEdited(channelID, messageID int64, newContent, editor string) {
	s.Broadcast("message.edited", ChannelRoom(channelID), map[string]any{
		"message_id":  messageID,
		"new_content": newContent,
	}, editor)
}

func (s *Service) MessageDeleted(channelID, messageID int64, deleter string) {
	s.Broadcast("message.deleted", ChannelRoom(channelID), map[string]any{
		"message_id": messageID,
	}, deleter)
}

func (s *Service) ProjectUpdated(projectID int64, changes map[string]any, updater string) {
	s.Broadcast("project.updated", ProjectRoom(projectID), map[string]any{
		"project_id": projectID,
		"changes":    changes,
	}, updater)
}

func (s *Service) ProjectArchived(projectID int64, archiver string) {
	s.Broadcast("project.archived", ProjectRoom(projectID), map[string]any{
		"project_id": projectID,
	}, archiver)
}

func (s *Service) UserNotification(userID int64, title, message, link, priority string) {
	if priority == "" {
		priority = "normal"
	}
	s.NotifyUser(userID, "new", map[string]any{
		"title":    title,
		"message":  message,
		"link":     link,
		"priority": priority,
	})
}

func (s *Service) UserMentioned(userID int64, mentionedBy, context, link string) {
	s.NotifyUser(userID, "mentioned", map[string]any{
		"mentioned_by": mentionedBy,
		"context":      context,
		"link":         link,
	})
}
