package tencent

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/regions"
	tmt "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tmt/v20180321"
)

type TencentClient interface {
	TranslateText(text, target string) (string, error)
}

type TencentClientImpl struct {
	tmtClient *tmt.Client
}

func NewClient(secretID, secretKey string) (TencentClient, error) {
	credential := common.NewCredential(
		secretID, secretKey,
	)

	cpf := profile.NewClientProfile()
	cpf.HttpProfile.ReqMethod = "POST"
	cpf.HttpProfile.ReqTimeout = 10 // seconds

	tmtClient, err := tmt.NewClient(credential, regions.Guangzhou, cpf)
	if err != nil {
		log.Error().Err(err).Msg("new tencent client error")
		return nil, err
	}
	return &TencentClientImpl{tmtClient: tmtClient}, nil
}

// TranslateText translates a block with automatic source detection. Newlines
// are kept by the service.
func (t *TencentClientImpl) TranslateText(text, target string) (string, error) {
	request := tmt.NewTextTranslateRequest()
	request.Source = common.StringPtr("auto")
	request.Target = common.StringPtr(target)
	request.SourceText = common.StringPtr(text)
	request.ProjectId = common.Int64Ptr(0)

	response, err := t.tmtClient.TextTranslate(request)
	if err != nil {
		log.Error().Err(err).Msg("failed to send request")
		return "", fmt.Errorf("tencent translate: %w", err)
	}
	if response.Response == nil || response.Response.TargetText == nil {
		return "", errors.New("tencent translate: empty response")
	}
	return *response.Response.TargetText, nil
}
