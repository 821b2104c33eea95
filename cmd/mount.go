// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lspecian/vexfs-sub013/logger"
	"github.com/lspecian/vexfs-sub013/vexfuse"
)

var mountNumBlocks uint64

var mountCmd = &cobra.Command{
	Use:   "mount device mount_point",
	Short: "Mount a VexFS image at mount_point, backed by the file or block device at device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		device, mountPoint := args[0], args[1]

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		mfs, err := vexfuse.Mount(ctx, device, mountPoint, mountNumBlocks, Settings)
		if err != nil {
			return fmt.Errorf("mounting %q at %q: %w", device, mountPoint, err)
		}
		logger.Infof("vexfs mounted at %s", mountPoint)

		<-ctx.Done()
		logger.Infof("unmounting %s", mountPoint)
		if err := mfs.Join(context.Background()); err != nil {
			return fmt.Errorf("waiting for unmount of %q: %w", mountPoint, err)
		}
		return nil
	},
}

func init() {
	mountCmd.Flags().Uint64Var(&mountNumBlocks, "num-blocks", 1<<20, "Number of blocks in the device image (used only when creating a new image file).")
}
