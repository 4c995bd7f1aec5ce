package cmd

import (
	"context"
	"crypto/tls"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dcpp-hub/adchub/adc"
	"github.com/dcpp-hub/adchub/hub"
	"github.com/dcpp-hub/adchub/hub/plugins/myip"
	"github.com/dcpp-hub/adchub/version"
)

const Version = version.Vers

var Root = &cobra.Command{
	Use: "adchubd <command>",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version:\t%s\nGo runtime:\t%s\n\n",
			Version, runtime.Version(),
		)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the hub",
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "configure the hub",
}

var confManager *viper.Viper // pointer to config manager

type FederationPeer struct {
	Name    string `yaml:"name"`
	ShardID uint32 `yaml:"shard_id"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

type Config struct {
	Hub struct {
		Name    string `yaml:"name"`
		Desc    string `yaml:"desc"`
		Owner   string `yaml:"owner"`
		Website string `yaml:"website"`
		Email   string `yaml:"email"`
		MOTD    string `yaml:"motd"`
		Private bool   `yaml:"private"`
	} `yaml:"hub"`

	Bot struct {
		Name string `yaml:"name"`
	} `yaml:"bot"`

	Serve struct {
		Host               string     `yaml:"host"`
		Port               int        `yaml:"port"`
		MaxUsers           int        `yaml:"max_users"`
		IdleTimeoutSeconds int        `yaml:"idle_timeout_seconds"`
		TLS                *TLSConfig `yaml:"tls"`
	} `yaml:"serve"`

	Federation struct {
		ShardWidth uint             `yaml:"shard_width"`
		ShardID    uint32           `yaml:"shard_id"`
		Peers      []FederationPeer `yaml:"peers"`
	} `yaml:"federation"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Plugins struct {
		Path string `yaml:"path"`
	} `yaml:"plugins"`
}

const defaultConfig = "hub.yml"

func initConfig(path string) error {
	return confManager.WriteConfigAs(path)
}

func readConfig(create bool) (*Config, hub.Map, error) {
	err := confManager.ReadInConfig()
	if err == nil {
		log.Printf("loaded config: %s\n", confManager.ConfigFileUsed())
	}
	if _, ok := err.(viper.ConfigFileNotFoundError); ok && create {
		if err = initConfig(defaultConfig); err != nil {
			return nil, nil, err
		}
		err = confManager.ReadInConfig()
		if err == nil {
			log.Println("initialized config:", confManager.ConfigFileUsed())
		}
	}
	if err != nil {
		return nil, nil, err
	}
	var c Config
	if err := confManager.Unmarshal(&c); err != nil {
		return nil, nil, err
	}
	var m map[string]interface{}
	if err := confManager.Unmarshal(&m); err != nil {
		return nil, nil, err
	}
	return &c, hub.Map(m), nil
}

func init() {
	confManager = viper.New()
	confManager.AddConfigPath(".")

	if runtime.GOOS != "windows" {
		confManager.AddConfigPath("/etc/adchub")
	}

	motd := "motd.txt"
	confManager.SetConfigName("hub")
	confManager.SetDefault("hub.motd", motd)
	confManager.SetDefault("hub.private", false)
	confManager.SetDefault("serve.max_users", 0)
	confManager.SetDefault("serve.idle_timeout_seconds", 360)
	confManager.SetDefault("database.path", "hub.db")
	confManager.SetDefault("plugins.path", "plugins")

	if _, err := os.Stat(motd); os.IsNotExist(err) {
		err = ioutil.WriteFile(motd, []byte(`

 .:: Welcome %[USER_NAME] to %[HUB_NAME]

 .:: Hub information ::.

 .:: Online users: %[HUB_USERS]
 .:: Uptime: %[HUB_UPTIME]

 .:: Your information ::.

 .:: IP address: %[USER_ADDR]

 .:: Don't forget to add this hub to favorites: /fav
`), 0600)
		if err != nil {
			log.Printf("Failed to create %s: %v\n", motd, err)
		}
	}

	initCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := initConfig(defaultConfig); err != nil {
			return err
		}
		fmt.Println("initialized config:", defaultConfig)
		return nil
	}
	Root.AddCommand(initCmd)

	flags := serveCmd.Flags()

	fDebug := flags.Bool("debug", false, "print protocol logs to stderr")
	fPProf := flags.Bool("pprof", false, "enable profiler endpoint")

	flags.String("name", "adchub", "name of the hub")
	confManager.BindPFlag("hub.name", flags.Lookup("name"))
	flags.String("desc", "An ADC hub", "description of the hub")
	confManager.BindPFlag("hub.desc", flags.Lookup("desc"))
	flags.String("host", "127.0.0.1", "host or IP to sign TLS certs for")
	confManager.BindPFlag("serve.host", flags.Lookup("host"))
	flags.Int("port", 1511, "port to listen on")
	confManager.BindPFlag("serve.port", flags.Lookup("port"))
	flags.String("plugins", "plugins", "directory of Lua plugins")
	confManager.BindPFlag("plugins.path", flags.Lookup("plugins"))
	Root.AddCommand(serveCmd)

	serveCmd.RunE = func(cmd *cobra.Command, args []string) error {
		conf, cmap, err := readConfig(true)
		if err != nil {
			return err
		}

		noTLS := conf.Serve.TLS == nil
		cert, kp, err := loadCert(conf)
		if err != nil {
			return err
		}
		if noTLS {
			confManager.Set("serve.tls", conf.Serve.TLS)
			if err = confManager.WriteConfig(); err != nil {
				return err
			}
		}

		tlsConf := &tls.Config{
			Certificates: []tls.Certificate{*cert},
		}
		addr := conf.Serve.Host + ":" + strconv.Itoa(conf.Serve.Port)

		h := hub.NewHub(hub.Config{
			Name:        conf.Hub.Name,
			Desc:        conf.Hub.Desc,
			Owner:       conf.Hub.Owner,
			Website:     conf.Hub.Website,
			Email:       conf.Hub.Email,
			MOTD:        conf.Hub.MOTD,
			Private:     conf.Hub.Private,
			Host:        conf.Serve.Host,
			Port:        conf.Serve.Port,
			MaxUsers:    conf.Serve.MaxUsers,
			IdleTimeout: time.Duration(conf.Serve.IdleTimeoutSeconds) * time.Second,
			ShardWidth:  conf.Federation.ShardWidth,
			ShardID:     conf.Federation.ShardID,
			BotName:     conf.Bot.Name,
			TLS:         tlsConf,
			Keyprint:    kp,
		})
		h.MergeConfig(cmap)

		if *fDebug {
			log.Println("WARNING: protocol debug enabled")
			adc.Debug = true
		}

		if *fPProf {
			const pprofPort = ":6060"
			log.Println("enabling profiler on", pprofPort)
			go func() {
				if err := http.ListenAndServe(pprofPort, nil); err != nil {
					log.Println("cannot enable profiler:", err)
				}
			}()
		}

		const promAddr = ":2112"
		log.Println("serving metrics on", promAddr)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(h.Metrics.Registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(promAddr, mux); err != nil {
				log.Println("cannot serve metrics:", err)
			}
		}()

		if conf.Database.Path != "" {
			log.Printf("using account/ban store: %s\n", conf.Database.Path)
			store, err := hub.OpenStore(conf.Database.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			h.Store = store
		} else {
			log.Println("WARNING: accounts and bans are not persisted")
		}

		if err := h.LoadPlugin(myip.New()); err != nil {
			return err
		}
		if _, err := os.Stat(conf.Plugins.Path); err == nil {
			log.Println("loading lua plugins in:", conf.Plugins.Path)
			if err := h.LoadPluginsInDir(conf.Plugins.Path); err != nil {
				return err
			}
		}

		for _, peer := range conf.Federation.Peers {
			p := peer
			go func() {
				ih, err := hub.ResolveAndDial(context.Background(), h, p.Name, p.ShardID, p.Host, p.Port)
				if err != nil {
					log.Printf("federation: dialing %s: %v\n", p.Name, err)
					return
				}
				h.Servers.AddFederatedHub(&hub.FederatedHub{ShardID: p.ShardID, Name: p.Name, Link: ih})
				ih.Serve()
			}()
		}

		if err := setLimits(); err != nil {
			return err
		}

		log.Println("listening on", addr)
		fmt.Printf(`
[ Hub URI ]
%s

[ HTTP stats ]
http://%s%s

`,
			h.URI(addr),
			addr, "/metrics",
		)

		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt)
		go func() {
			<-ch
			log.Println("stopping server")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = h.Close(ctx)
		}()

		Root.SilenceUsage = true
		return h.ListenAndServe(addr, conf.Serve.MaxUsers)
	}
}
