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

package cfg

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

// blockSizeHook lets --block-size / a config file's storage.block-size
// arrive as either a YAML/JSON number or a quoted string and still decode
// into the BlockSize type.
func blockSizeHook() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(BlockSize(0)) || f.Kind() != reflect.String {
			return data, nil
		}
		n, err := strconv.ParseUint(data.(string), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid block-size %q: %w", data.(string), err)
		}
		return BlockSize(n), nil
	}
}

// DecodeHook composes the decode hooks viper.Unmarshal uses to populate
// Config: DataJournalingMode's encoding.TextUnmarshaler is picked up via
// mapstructure.TextUnmarshallerHookFunc, blockSizeHook additionally accepts a
// quoted block-size, and the two StringTo* hooks are mapstructure's own
// defaults, restated explicitly because supplying any DecodeHook option to
// viper.Unmarshal replaces its defaults rather than appending to them.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		blockSizeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
