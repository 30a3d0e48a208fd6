// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"testing"

	"github.com/linuxdeepin/go-lib/log"
	"github.com/stretchr/testify/assert"
)

func Test_doSetLogLevel(t *testing.T) {
	doSetLogLevel(log.LevelDebug)
	assert.Equal(t, log.LevelDebug, logger.GetLogLevel())
	doSetLogLevel(log.LevelInfo)
	assert.Equal(t, log.LevelInfo, logger.GetLogLevel())
}

func Test_run(t *testing.T) {
	assert.Equal(t, 0, run([]string{"--help"}))
	assert.Equal(t, 0, run([]string{"-v"}))
	assert.Equal(t, 1, run([]string{"-l", "loud"}))
	assert.Equal(t, 1, run([]string{"--no-such-flag"}))
}
