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
	"context"
	"errors"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kmsg"

	"kafkad/internal/logging"
	"kafkad/internal/protocol"
)

// DefaultPartitions is used when CreateTopics asks for the broker default.
const DefaultPartitions int32 = 1

// versionRange is an inclusive range of api versions.
type versionRange struct {
	min, max int16
}

// The header layout follows api_version, and only at v1 does it match the
// header a real client sends. ApiVersions can be served at 0-2 because its
// payload is never read.
var supportedAPIs = map[kmsg.Key]versionRange{
	kmsg.ApiVersions:  {0, 2},
	kmsg.Metadata:     {1, 1},
	kmsg.CreateTopics: {1, 1},
}

// HandlerConfig describes how the broker advertises itself.
type HandlerConfig struct {
	NodeID    int32
	Host      string
	Port      int32
	ClusterID string
}

// Handler serves ApiVersions, Metadata and CreateTopics against State.
type Handler struct {
	cfg    HandlerConfig
	logger *logging.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.ClusterID == "" {
		cfg.ClusterID = "kafkad"
	}
	return &Handler{cfg: cfg, logger: logging.NewLogger("handler")}
}

// Handle decodes the payload of req, applies it to state and returns the
// encoded response body.
func (h *Handler) Handle(ctx context.Context, req *protocol.Request, state *State) ([]byte, error) {
	key := kmsg.Key(req.APIKey())
	version := req.APIVersion()

	vr, ok := supportedAPIs[key]
	if !ok {
		return nil, protocol.Internal("no handler for api_key %d (%s)", req.APIKey(), logging.APIName(req.APIKey()))
	}
	if key != kmsg.ApiVersions && (version < vr.min || version > vr.max) {
		return nil, protocol.Unsupported(version)
	}

	switch key {
	case kmsg.ApiVersions:
		return h.apiVersions(version), nil
	case kmsg.Metadata:
		return h.metadata(req, state)
	case kmsg.CreateTopics:
		return h.createTopics(req, state)
	}
	return nil, protocol.Internal("no handler for api_key %d", req.APIKey())
}

// apiVersions answers at the requested version, or at v0 with
// UNSUPPORTED_VERSION when the client asked for more than we speak.
func (h *Handler) apiVersions(version int16) []byte {
	resp := kmsg.NewPtrApiVersionsResponse()
	vr := supportedAPIs[kmsg.ApiVersions]
	if version < vr.min || version > vr.max {
		resp.SetVersion(0)
		resp.ErrorCode = kerr.UnsupportedVersion.Code
	} else {
		resp.SetVersion(version)
	}

	for _, key := range []kmsg.Key{kmsg.ApiVersions, kmsg.Metadata, kmsg.CreateTopics} {
		r := supportedAPIs[key]
		resp.ApiKeys = append(resp.ApiKeys, kmsg.ApiVersionsResponseApiKey{
			ApiKey:     int16(key),
			MinVersion: r.min,
			MaxVersion: r.max,
		})
	}
	return resp.AppendTo(nil)
}

func (h *Handler) metadata(req *protocol.Request, state *State) ([]byte, error) {
	mreq := kmsg.NewPtrMetadataRequest()
	mreq.SetVersion(req.APIVersion())
	if err := mreq.ReadFrom(req.Payload); err != nil {
		return nil, protocol.MalformedRequest("metadata request: %v", err)
	}

	resp := kmsg.NewPtrMetadataResponse()
	resp.SetVersion(req.APIVersion())
	resp.Brokers = []kmsg.MetadataResponseBroker{{
		NodeID: h.cfg.NodeID,
		Host:   h.cfg.Host,
		Port:   h.cfg.Port,
	}}
	resp.ClusterID = kmsg.StringPtr(h.cfg.ClusterID)
	resp.ControllerID = h.cfg.NodeID

	// A null topic array asks for every topic.
	if mreq.Topics == nil {
		for _, md := range state.Topics() {
			resp.Topics = append(resp.Topics, h.topicMetadata(md))
		}
		return resp.AppendTo(nil), nil
	}

	for _, t := range mreq.Topics {
		if t.Topic == nil {
			continue
		}
		md, ok := state.Topic(*t.Topic)
		if !ok {
			resp.Topics = append(resp.Topics, kmsg.MetadataResponseTopic{
				Topic:     kmsg.StringPtr(*t.Topic),
				ErrorCode: kerr.UnknownTopicOrPartition.Code,
			})
			continue
		}
		resp.Topics = append(resp.Topics, h.topicMetadata(md))
	}
	return resp.AppendTo(nil), nil
}

// topicMetadata reports every partition as led by this broker.
func (h *Handler) topicMetadata(md TopicMetadata) kmsg.MetadataResponseTopic {
	t := kmsg.MetadataResponseTopic{
		Topic:   kmsg.StringPtr(md.Name),
		TopicID: [16]byte(md.ID),
	}
	for p := int32(0); p < md.Partitions; p++ {
		t.Partitions = append(t.Partitions, kmsg.MetadataResponseTopicPartition{
			Partition: p,
			Leader:    h.cfg.NodeID,
			Replicas:  []int32{h.cfg.NodeID},
			ISR:       []int32{h.cfg.NodeID},
		})
	}
	return t
}

func (h *Handler) createTopics(req *protocol.Request, state *State) ([]byte, error) {
	creq := kmsg.NewPtrCreateTopicsRequest()
	creq.SetVersion(req.APIVersion())
	if err := creq.ReadFrom(req.Payload); err != nil {
		return nil, protocol.MalformedRequest("create topics request: %v", err)
	}

	resp := kmsg.NewPtrCreateTopicsResponse()
	resp.SetVersion(req.APIVersion())

	for _, t := range creq.Topics {
		rt := kmsg.NewCreateTopicsResponseTopic()
		rt.Topic = t.Topic
		rt.NumPartitions = t.NumPartitions
		rt.ReplicationFactor = t.ReplicationFactor

		partitions := t.NumPartitions
		if partitions == -1 {
			partitions = DefaultPartitions
		}

		var err error
		if creq.ValidateOnly {
			err = ValidateTopicName(t.Topic)
			if err == nil && partitions < 1 {
				err = ErrInvalidPartitions
			}
			if _, exists := state.Topic(t.Topic); err == nil && exists {
				err = ErrTopicExists
			}
		} else {
			var md TopicMetadata
			md, err = state.CreateTopic(t.Topic, partitions)
			if err == nil {
				rt.TopicID = [16]byte(md.ID)
				rt.NumPartitions = md.Partitions
				h.logger.Info("Topic created", "topic", md.Name, "partitions", md.Partitions, "topic_id", md.ID.String())
			}
		}

		if err != nil {
			rt.ErrorCode = topicErrorCode(err)
			rt.ErrorMessage = kmsg.StringPtr(err.Error())
		}
		resp.Topics = append(resp.Topics, rt)
	}
	return resp.AppendTo(nil), nil
}

func topicErrorCode(err error) int16 {
	switch {
	case errors.Is(err, ErrTopicExists):
		return kerr.TopicAlreadyExists.Code
	case errors.Is(err, ErrInvalidTopic):
		return kerr.InvalidTopicException.Code
	case errors.Is(err, ErrInvalidPartitions):
		return kerr.InvalidPartitions.Code
	default:
		return kerr.UnknownServerError.Code
	}
}
