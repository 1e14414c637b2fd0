// Package discovery анонсирует сервис в локальной сети через mDNS,
// чтобы клиенты находили шлюз без ручной настройки IP.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"time"

	"github.com/grandcat/zeroconf"

	"edge-sentiment/internal/config"
)

// FallbackIP адрес, если локальный адрес определить не удалось
const FallbackIP = "127.0.0.1"

// Advertisement описание анонсируемого сервиса
type Advertisement struct {
	Instance   string
	Service    string
	Domain     string
	Hostname   string
	Port       int
	Properties map[string]string
}

// NewAdvertisement строит анонс из конфигурации.
// Если порт анонса не задан, анонсируется порт сервиса.
func NewAdvertisement(cfg config.Config) Advertisement {
	port := cfg.Beacon.Port
	if port == 0 {
		port = cfg.Port
	}
	props := make(map[string]string, len(cfg.Beacon.Properties))
	for k, v := range cfg.Beacon.Properties {
		props[k] = v
	}
	return Advertisement{
		Instance:   cfg.Beacon.Instance,
		Service:    cfg.Beacon.Service,
		Domain:     cfg.Beacon.Domain,
		Hostname:   cfg.Beacon.Hostname,
		Port:       port,
		Properties: props,
	}
}

// TXT возвращает свойства в виде TXT записей key=value, отсортированных по ключу
func (a Advertisement) TXT() []string {
	keys := make([]string, 0, len(a.Properties))
	for k := range a.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	txt := make([]string, 0, len(keys))
	for _, k := range keys {
		txt = append(txt, fmt.Sprintf("%s=%s", k, a.Properties[k]))
	}
	return txt
}

// LocalIP определяет адрес интерфейса, через который идет исходящий трафик.
// UDP "соединение" не отправляет пакетов.
func LocalIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return FallbackIP
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil {
		return FallbackIP
	}
	return addr.IP.String()
}

// Registration активная регистрация в mDNS
type Registration interface {
	Shutdown()
}

// Registrar регистрирует анонс для указанного адреса
type Registrar func(ad Advertisement, ip string) (Registration, error)

// ZeroconfRegistrar регистрирует сервис через zeroconf с собственным именем хоста
func ZeroconfRegistrar(ad Advertisement, ip string) (Registration, error) {
	server, err := zeroconf.RegisterProxy(ad.Instance, ad.Service, ad.Domain, ad.Port, ad.Hostname, []string{ip}, ad.TXT(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to advertise mDNS service: %w", err)
	}
	return server, nil
}

// Beacon периодически переанонсирует сервис; обратной связи с сервисом инференса нет
type Beacon struct {
	ad       Advertisement
	interval time.Duration
	logger   *slog.Logger
	register Registrar
	resolve  func() string
}

// NewBeacon создает маяк с регистрацией через zeroconf
func NewBeacon(ad Advertisement, interval time.Duration, logger *slog.Logger) *Beacon {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Beacon{
		ad:       ad,
		interval: interval,
		logger:   logger.With("component", "beacon"),
		register: ZeroconfRegistrar,
		resolve:  LocalIP,
	}
}

// Run анонсирует сервис до отмены контекста.
// Если локальный адрес меняется, регистрация пересоздается.
func (b *Beacon) Run(ctx context.Context) error {
	ip := b.resolve()
	reg, err := b.advertise(ip)
	if err != nil {
		return err
	}
	defer func() {
		reg.Shutdown()
		b.logger.Info("mDNS advertiser stopped")
	}()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			current := b.resolve()
			if current == ip {
				b.logger.Debug("mDNS service still advertising", "ip", ip)
				continue
			}

			b.logger.Info("local address changed, re-advertising", "old_ip", ip, "new_ip", current)
			next, err := b.advertise(current)
			if err != nil {
				b.logger.Error("re-advertise failed, keeping previous registration", "error", err)
				continue
			}
			reg.Shutdown()
			reg, ip = next, current
		}
	}
}

func (b *Beacon) advertise(ip string) (Registration, error) {
	reg, err := b.register(b.ad, ip)
	if err != nil {
		return nil, err
	}
	b.logger.Info("mDNS service advertised",
		"instance", b.ad.Instance,
		"type", b.ad.Service,
		"hostname", b.ad.Hostname+"."+b.ad.Domain,
		"ip", ip,
		"port", b.ad.Port,
		"properties", b.ad.TXT(),
	)
	return reg, nil
}
