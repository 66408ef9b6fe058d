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

package broker

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestCreateTopic(t *testing.T) {
	s := NewState()

	md, err := s.CreateTopic("orders", 3)
	if err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}
	if md.Name != "orders" || md.Partitions != 3 {
		t.Errorf("CreateTopic() = %+v, want orders/3", md)
	}
	if md.ID == uuid.Nil {
		t.Error("Expected a topic ID to be assigned")
	}

	got, ok := s.Topic("orders")
	if !ok {
		t.Fatal("Topic(orders) not found")
	}
	if got != md {
		t.Errorf("Topic() = %+v, want %+v", got, md)
	}

	if _, err := s.CreateTopic("orders", 1); !errors.Is(err, ErrTopicExists) {
		t.Errorf("CreateTopic() duplicate error = %v, want %v", err, ErrTopicExists)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestCreateTopicRejects(t *testing.T) {
	tests := []struct {
		name       string
		topic      string
		partitions int32
		want       error
	}{
		{"empty name", "", 1, ErrInvalidTopic},
		{"dot", ".", 1, ErrInvalidTopic},
		{"dot dot", "..", 1, ErrInvalidTopic},
		{"space", "my topic", 1, ErrInvalidTopic},
		{"too long", strings.Repeat("a", MaxTopicNameLen+1), 1, ErrInvalidTopic},
		{"zero partitions", "events", 0, ErrInvalidPartitions},
		{"negative partitions", "events", -2, ErrInvalidPartitions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			if _, err := s.CreateTopic(tt.topic, tt.partitions); !errors.Is(err, tt.want) {
				t.Errorf("CreateTopic(%q, %d) error = %v, want %v", tt.topic, tt.partitions, err, tt.want)
			}
			if s.Len() != 0 {
				t.Errorf("Len() = %d, want 0", s.Len())
			}
		})
	}
}

func TestValidateTopicName(t *testing.T) {
	valid := []string{"a", "orders", "user-events", "metrics.cpu_0", strings.Repeat("x", MaxTopicNameLen)}
	for _, name := range valid {
		if err := ValidateTopicName(name); err != nil {
			t.Errorf("ValidateTopicName(%q) = %v, want nil", name, err)
		}
	}
}

func TestTopicsSorted(t *testing.T) {
	s := NewState()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := s.CreateTopic(name, 1); err != nil {
			t.Fatalf("CreateTopic(%s) error = %v", name, err)
		}
	}

	topics := s.Topics()
	if len(topics) != 3 {
		t.Fatalf("Topics() returned %d topics, want 3", len(topics))
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if topics[i].Name != want {
			t.Errorf("Topics()[%d] = %s, want %s", i, topics[i].Name, want)
		}
	}
}

func TestStateConcurrentAccess(t *testing.T) {
	s := NewState()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if _, err := s.CreateTopic(fmt.Sprintf("topic-%d", i), 1); err != nil {
				t.Errorf("CreateTopic() error = %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Topics()
		}()
	}
	wg.Wait()

	if s.Len() != 20 {
		t.Errorf("Len() = %d, want 20", s.Len())
	}
}
