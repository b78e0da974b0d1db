package swarm

import (
	"fmt"
	"strings"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/samuel/go-zookeeper/zk"
)

const (
	zkLeaderSuffix   = "/swarm/leader"
	consulLeaderKey  = "docker/swarm/leader"
	defaultZKTimeout = 10 * time.Second
)

// ResolveManager turns a configured Swarm manager URL into a concrete
// Docker Engine API base URL. Three forms are accepted (spec §4.3/§6):
// a plain http(s):// URL used directly, a zk://host1,host2/path pointing
// at a ZooKeeper ensemble whose leader key holds the manager address, and
// a consul://host pointing at a Consul agent whose kv store holds it.
func ResolveManager(managerURL, zkPath string) (string, error) {
	switch {
	case strings.HasPrefix(managerURL, "zk://"):
		servers, urlPath, _ := strings.Cut(strings.TrimPrefix(managerURL, "zk://"), "/")
		if urlPath != "" {
			zkPath = "/" + urlPath
		}
		return resolveZooKeeper(servers, zkPath)
	case strings.HasPrefix(managerURL, "consul://"):
		return resolveConsul(strings.TrimPrefix(managerURL, "consul://"))
	case strings.HasPrefix(managerURL, "http://"), strings.HasPrefix(managerURL, "https://"):
		return managerURL, nil
	default:
		return "", fmt.Errorf("unsupported swarm manager URL scheme: %s", managerURL)
	}
}

func resolveZooKeeper(servers, path string) (string, error) {
	if path == "" {
		path = "/docker"
	}
	leaderPath := path + zkLeaderSuffix

	conn, _, err := zk.Connect(strings.Split(servers, ","), defaultZKTimeout)
	if err != nil {
		return "", fmt.Errorf("connecting to zookeeper: %w", err)
	}
	defer conn.Close()

	data, _, err := conn.Get(leaderPath)
	if err != nil {
		return "", fmt.Errorf("reading swarm leader key %s: %w", leaderPath, err)
	}
	return string(data), nil
}

func resolveConsul(addr string) (string, error) {
	client, err := consulapi.NewClient(&consulapi.Config{Address: addr})
	if err != nil {
		return "", fmt.Errorf("creating consul client: %w", err)
	}

	pair, _, err := client.KV().Get(consulLeaderKey, nil)
	if err != nil {
		return "", fmt.Errorf("reading consul key %s: %w", consulLeaderKey, err)
	}
	if pair == nil {
		return "", fmt.Errorf("consul key %s not found", consulLeaderKey)
	}
	return string(pair.Value), nil
}
