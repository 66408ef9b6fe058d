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
kafkad-probe - checks a running kafkad (or any Kafka broker) with a stock
Kafka client.

USAGE:
======

	kafkad-probe [-addr host:port] [-create topic] [-partitions n]

The probe connects, lists the api versions the broker advertises,
optionally creates a topic and prints the partitions the broker reports.
It exits with status 1 if any step fails.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"kafkad/internal/banner"
	"kafkad/internal/logging"
	"kafkad/pkg/cli"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9092", "Broker address")
	create := flag.String("create", "", "Topic to create before listing partitions")
	partitions := flag.Int("partitions", 1, "Partitions for -create")
	timeout := flag.Duration("timeout", 5*time.Second, "Deadline for the whole probe")
	flag.Parse()

	banner.PrintCompact(os.Stdout, "kafkad-probe")
	out := cli.NewPrinter(os.Stdout)
	if err := probe(out, *addr, *create, *partitions, *timeout); err != nil {
		out.Error(err, "is kafkad listening on "+*addr+"?")
		os.Exit(1)
	}
}

func probe(out *cli.Printer, addr, topic string, partitions int, timeout time.Duration) error {
	conn, err := kafka.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	out.Success("Connected to %s", addr)

	versions, err := conn.ApiVersions()
	if err != nil {
		return fmt.Errorf("api versions: %w", err)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].ApiKey < versions[j].ApiKey })
	rows := make([][]string, 0, len(versions))
	for _, v := range versions {
		rows = append(rows, []string{
			logging.APIName(v.ApiKey),
			strconv.Itoa(int(v.MinVersion)),
			strconv.Itoa(int(v.MaxVersion)),
		})
	}
	out.Header("Supported APIs")
	out.Table([]string{"API", "MIN", "MAX"}, rows)

	if topic != "" {
		if err := conn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		}); err != nil {
			return fmt.Errorf("create topic %s: %w", topic, err)
		}
		out.Success("Created topic %s", topic)
	}

	parts, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("read partitions: %w", err)
	}
	rows = rows[:0]
	for _, p := range parts {
		rows = append(rows, []string{
			p.Topic,
			strconv.Itoa(p.ID),
			fmt.Sprintf("%s:%d", p.Leader.Host, p.Leader.Port),
		})
	}
	out.Header("Partitions")
	if len(rows) == 0 {
		out.Info("No topics")
		return nil
	}
	out.Table([]string{"TOPIC", "PARTITION", "LEADER"}, rows)
	return nil
}
