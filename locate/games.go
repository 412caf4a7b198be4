// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2026 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package locate

import (
	"encoding/json"
	"path"

	"github.com/backpork/backpork/logger"
	"github.com/backpork/backpork/remote"
)

// Game is a title installed under the mount root.
type Game struct {
	TitleID   string `json:"title_id"`
	Title     string `json:"title"`
	ContentID string `json:"content_id"`
	Path      string `json:"path"`
	Icon      []byte `json:"icon,omitempty"`
}

type paramJSON map[string]interface{}

func (p paramJSON) first(keys ...string) string {
	for _, k := range keys {
		if s, ok := p[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Installed lists the titles under the mount root. Metadata and icons are
// read best effort.
func Installed(sess remote.Session) ([]Game, error) {
	entries, err := sess.List(MountRoot)
	if err != nil {
		return nil, err
	}
	var games []Game
	for _, e := range entries {
		if !e.IsDir() || !HasTitlePrefix(e.Name) {
			continue
		}
		g := Game{
			TitleID: e.Name,
			Title:   e.Name,
			Path:    path.Join(MountRoot, e.Name),
		}
		if data, err := sess.Retrieve(path.Join(g.Path, "sce_sys", "param.json")); err == nil {
			var params paramJSON
			if err := json.Unmarshal(data, &params); err == nil {
				if title := params.first("title", "TITLE", "name", "NAME"); title != "" {
					g.Title = title
				}
				g.ContentID = params.first("contentId", "CONTENT_ID")
			} else {
				logger.Debugf("cannot parse param.json for %s: %v", e.Name, err)
			}
		}
		for _, icon := range []string{"sce_sys/icon0.png", "icon0.png"} {
			if data, err := sess.Retrieve(path.Join(g.Path, icon)); err == nil && len(data) > 0 {
				g.Icon = data
				break
			}
		}
		games = append(games, g)
	}
	return games, nil
}
