package ctx

import (
	"path/filepath"
	"time"

	"backup-master/modules/backend/scheduler"
	"backup-master/modules/backup"
	"backup-master/modules/backup/dump"
	"backup-master/modules/endpoint"
)

// Server is a configured backup source
type Server struct {
	Name       string
	Descriptor endpoint.Descriptor
	Backup     backup.BackupConfig
	// Schedule is nil when the server is backed up on demand only
	Schedule *scheduler.Schedule
}

func serversInit(c confOpts) []Server {

	var servers []Server

	for _, s := range c.Servers {

		mode, _ := backup.ParseMode(s.Backup.Mode)

		srv := Server{
			Name: s.Name,
			Descriptor: endpoint.Descriptor{
				Name:           s.Name,
				Protocol:       s.Protocol,
				Host:           s.Host,
				Port:           s.Port,
				User:           s.Username,
				Password:       s.Password,
				KeyFile:        s.KeyFile,
				KnownHosts:     s.KnownHosts,
				ExplicitTLS:    s.ExplicitTLS,
				ConnectTimeout: time.Duration(s.ConnectTimeout) * time.Second,
				RootPath:       s.WebRoot,
			},
			Backup: backup.BackupConfig{
				Mode:          mode,
				TargetPath:    filepath.Join(c.TargetPath, s.Name),
				FilterPattern: s.Backup.Filter,
				CreateArchive: s.Backup.CreateArchive,
				GzipDumps:     s.Backup.GzipDumps,
				VerifyConnect: s.Backup.VerifyConnect,
			},
		}

		for _, d := range s.Databases {
			srv.Backup.Databases = append(srv.Backup.Databases, dump.Target{
				Kind:      dump.Kind(d.Kind),
				Host:      d.Host,
				Port:      d.Port,
				User:      d.Username,
				Password:  d.Password,
				Name:      d.Name,
				ExtraKeys: d.ExtraKeys,
			})
		}

		if s.Schedule.Enabled {
			sch := s.scheduleSettings()
			srv.Schedule = &sch
		}

		servers = append(servers, srv)
	}

	return servers
}
