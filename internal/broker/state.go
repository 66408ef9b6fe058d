/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package broker holds the state shared by all client sessions and the
default request handler that serves it.

SHARED STATE:
=============
State is a topic registry created once at startup and handed to every
session by pointer. There is no package-level instance; whoever starts the
server owns it.

	State
	 └── topics (map[string]TopicMetadata)

Storage, partition logs, replication and consumer groups live downstream of
this package. State only records which topics exist.

THREAD SAFETY:
==============
- Lookups and listings take the read lock
- Creation takes the write lock
- Returned TopicMetadata values are copies

REQUEST HANDLING:
=================
Handler implements the dispatch step of a session for the handful of APIs
a client needs to discover the broker:

	ApiVersions   advertises the supported api keys and versions
	Metadata      describes this broker and the registered topics
	CreateTopics  registers topics in State

Any other api key fails the request with an internal fault.
*/
package broker

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxTopicNameLen is the longest topic name the broker accepts.
const MaxTopicNameLen = 249

var (
	// ErrTopicExists is returned when creating a topic that is registered.
	ErrTopicExists = errors.New("topic already exists")

	// ErrInvalidTopic is returned for names the broker refuses.
	ErrInvalidTopic = errors.New("invalid topic name")

	// ErrInvalidPartitions is returned for a partition count below one.
	ErrInvalidPartitions = errors.New("invalid partition count")
)

// TopicMetadata describes a registered topic.
type TopicMetadata struct {
	Name       string
	ID         uuid.UUID
	Partitions int32
	CreatedAt  time.Time
}

// State is the broker state shared across sessions.
type State struct {
	mu     sync.RWMutex
	topics map[string]TopicMetadata
}

// NewState returns an empty State.
func NewState() *State {
	return &State{topics: make(map[string]TopicMetadata)}
}

// CreateTopic registers a topic with a fresh ID.
func (s *State) CreateTopic(name string, partitions int32) (TopicMetadata, error) {
	if err := ValidateTopicName(name); err != nil {
		return TopicMetadata{}, err
	}
	if partitions < 1 {
		return TopicMetadata{}, fmt.Errorf("%w: %d", ErrInvalidPartitions, partitions)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.topics[name]; ok {
		return TopicMetadata{}, fmt.Errorf("%w: %s", ErrTopicExists, name)
	}
	md := TopicMetadata{
		Name:       name,
		ID:         uuid.New(),
		Partitions: partitions,
		CreatedAt:  time.Now().UTC(),
	}
	s.topics[name] = md
	return md, nil
}

// Topic returns the metadata of one topic.
func (s *State) Topic(name string) (TopicMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.topics[name]
	return md, ok
}

// Topics lists all topics sorted by name.
func (s *State) Topics() []TopicMetadata {
	s.mu.RLock()
	out := make([]TopicMetadata, 0, len(s.topics))
	for _, md := range s.topics {
		out = append(out, md)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered topics.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.topics)
}

// ValidateTopicName applies the broker's topic naming rules: 1 to 249
// characters from [a-zA-Z0-9._-], and not "." or "..".
func ValidateTopicName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, name)
	}
	if len(name) > MaxTopicNameLen {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidTopic, MaxTopicNameLen)
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return fmt.Errorf("%w: illegal character %q in %q", ErrInvalidTopic, c, name)
		}
	}
	return nil
}
