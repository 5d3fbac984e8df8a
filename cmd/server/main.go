package main

import (
	"github.com/Nelly6002/fullstack-chat-app-master/internal/config"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/db"
	clog "github.com/Nelly6002/fullstack-chat-app-master/internal/log"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/presence"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/server"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/storage"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	images, err := storage.NewImageStore(cfg.UploadDir)
	if err != nil {
		log.Fatal().Err(err).Msg("image store")
	}

	table := presence.NewTable()
	r := server.SetupRouter(cfg, gdb, table, images)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
