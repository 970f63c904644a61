// SecureChat - End-to-End Encrypted Chat
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SecureChat.
//
// SecureChat is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SecureChat is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SecureChat. If not, see <https://www.gnu.org/licenses/>.

package envelope

import "github.com/sage-x-project/securechat/pkg/wire"

// ShouldEncrypt reports whether a message of kind should be sealed
// before transmission. Connection bootstrap, key exchange, and error
// kinds travel in the clear since encrypting them would be circular
// or meaningless; everything that carries user content or management
// intent is encrypted.
func ShouldEncrypt(kind wire.MessageType) bool {
	return kind.Encryptable()
}
